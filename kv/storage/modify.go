package storage

// The column families used by the transactional layer. There is no physical
// separation in some Storage implementations; a CF is just a namespace.
const (
	// CfDefault holds user values, keyed by encoded (user key, start ts).
	CfDefault string = "default"
	// CfLock holds uncommitted locks, keyed by plain user key.
	CfLock string = "lock"
	// CfWrite holds commit records, keyed by encoded (user key, commit ts).
	CfWrite string = "write"
)

// Modify is the smallest unit of mutation of the underlying storage.
type Modify struct {
	Data interface{}
}

type Put struct {
	Key   []byte
	Value []byte
	Cf    string
}

type Delete struct {
	Key []byte
	Cf  string
}

func (m *Modify) Key() []byte {
	switch m.Data.(type) {
	case Put:
		return m.Data.(Put).Key
	case Delete:
		return m.Data.(Delete).Key
	}
	return nil
}

func (m *Modify) Value() []byte {
	if putData, ok := m.Data.(Put); ok {
		return putData.Value
	}

	return nil
}

func (m *Modify) Cf() string {
	switch m.Data.(type) {
	case Put:
		return m.Data.(Put).Cf
	case Delete:
		return m.Data.(Delete).Cf
	}
	return ""
}
