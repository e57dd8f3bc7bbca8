package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"go.etcd.io/bbolt"
)

const (
	KindPublication = "publications"
	KindCommand     = "commands"
)

// Journal records outbound global publishes and command sends in a bbolt
// file, keyed by an increasing sequence per kind. A diagnostic aid, not a
// delivery guarantee.
type Journal struct {
	db *bbolt.DB
}

type Entry struct {
	Seq     uint64    `json:"seq"`
	Subject string    `json:"subject"`
	Payload []byte    `json:"payload"`
	At      time.Time `json:"at"`
}

func NewJournal(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(KindPublication))
		if err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists([]byte(KindCommand))
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Record(kind string, subject string, payload []byte) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("unknown journal kind: %s", kind)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(Entry{
			Seq:     seq,
			Subject: subject,
			Payload: payload,
			At:      time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Entries iterates the recorded entries of one kind in sequence order.
func (j *Journal) Entries(kind string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		j.db.View(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(kind))
			if b == nil {
				yield(Entry{}, fmt.Errorf("unknown journal kind: %s", kind))
				return nil
			}
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var entry Entry
				if err := json.Unmarshal(v, &entry); err != nil {
					yield(Entry{}, err)
					return nil
				}
				if !yield(entry, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}
