package types

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is one event in wire form. Field order is preserved end to end.
// Records are built once and not modified afterwards.
type Record []Field

// Get returns the value of the first field named key.
func (r Record) Get(key string) (string, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Batch is an ordered group of records flushed together in one transmission.
type Batch []Record
