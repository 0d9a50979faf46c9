// Package journal records durable order writes that failed after the board
// was already updated optimistically.
//
// Nothing is rolled back on the board. Journal rows are the operator's
// follow-up list and can seed a compensating job. Entries are batched in
// memory and flushed to PostgreSQL on a timer or when the batch fills.
package journal
