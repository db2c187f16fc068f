// Package meterpb is the wire contract between wattboard-agent and
// wattboard-server.
//
// Messages travel over gRPC encoded as JSON. The codec registers itself under
// the "json" content subtype at init, so any binary importing this package
// can serve and call ReadingService without generated protobuf code. The
// client returned by NewReadingServiceClient selects the codec on every call.
//
// The service has one unary method:
//
//	wattboard.meter.v1.ReadingService/Push(Batch) -> PushResponse
package meterpb
