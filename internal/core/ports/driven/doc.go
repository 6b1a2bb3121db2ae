// Package driven defines the interfaces the harvesting engine depends on:
// page fetchers implemented by provider packages, and the checkpoint store,
// record sink and roster implemented by storage adapters. The engine calls
// these ports; it never imports a provider or adapter package.
package driven
