// Package receiver implements meterpb.ReadingServiceServer, the gRPC endpoint
// that accepts reading batches from wattboard-agent instances.
//
// For each reading Push checks the building ID and value, classifies it
// against its baseline (a non-positive baseline is rejected), stores it and
// passes the classification to the alert tracker. Rejected readings are
// logged, counted and reported in PushResponse without failing the batch.
// Authentication is enforced upstream by the gRPC server interceptor
// (see package auth).
package receiver
