package storage

// PrinterResolver resolves printer names against the registry. An empty
// name resolves to the default printer.
type PrinterResolver struct {
	store Store
}

// NewPrinterResolver creates a resolver backed by a store
func NewPrinterResolver(store Store) *PrinterResolver {
	return &PrinterResolver{store: store}
}

// Resolve returns the endpoint of a registered printer
func (r *PrinterResolver) Resolve(name string) (string, int, error) {
	var p *Printer
	var err error
	if name == "" {
		p, err = r.store.GetDefaultPrinter()
	} else {
		p, err = r.store.GetPrinter(name)
	}
	if err != nil {
		return "", 0, err
	}
	return p.Host, p.Port, nil
}
