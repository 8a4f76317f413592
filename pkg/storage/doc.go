// Package storage provides persistent storage for the printer registry
// and bridge settings.
//
// The Store interface is backed by SQLite by default, with a MySQL
// implementation available for shared deployments. Job payloads and job
// history are never persisted; a job lives only for the duration of one
// dispatch-result round trip.
//
// Usage:
//
//	store, err := storage.NewStore(cfg.Database)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.SavePrinter(&storage.Printer{Name: "front-desk", Host: "192.168.1.50", Port: 9100})
//	printers, err := store.GetAllPrinters()
package storage
