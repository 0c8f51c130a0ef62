// Package campaign holds the campaign lifecycle service: authoring, staging
// recipients into the send queue, launch planning onto the domain timeline,
// failed-send retries, and completion reconciliation. Repositories abstract
// the PostgreSQL tables so the service logic stays testable with in-memory
// fakes.
package campaign
