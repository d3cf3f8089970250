// Package app composes the café ledger services into a single application.
//
// The package follows a layered layout:
//
//   - domain/   pure data models (products, clients, purchase records)
//   - storage/  store interfaces plus memory, jsonfile, and postgres backends
//   - services/ business logic: catalog, clients, ledger, backup
//   - httpapi/  the REST surface over the services
//   - metrics/  Prometheus registry and HTTP instrumentation
//   - system/   service lifecycle contract and manager
//
// Application ties the layers together: construct it with New, attach any
// background services, then Start and Stop it through the embedded manager.
package app
