package badger

// Stores bundles the three badger-backed stores sharing one database.
type Stores struct {
	Backend *Backend
	Ledger  *Ledger
	Objects *ObjectStore
	Vectors *VectorIndex
}

// Open opens (or creates) a database at path and returns every store on it.
func Open(path string) (*Stores, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStores(backend), nil
}

func newStores(backend *Backend) *Stores {
	return &Stores{
		Backend: backend,
		Ledger:  NewLedger(backend),
		Objects: NewObjectStore(backend),
		Vectors: NewVectorIndex(backend),
	}
}

// Close closes the shared database.
func (s *Stores) Close() error {
	return s.Backend.Close()
}
