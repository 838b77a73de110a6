// Package core provides the foundational types shared by every layer of
// fnstream. It defines:
//
//   - Token (the one-shot, idempotent cancellation signal shared between a
//     stream coordinator and the engine call it supervises)
//   - Result and Kind (the partial / done / error tagged outcomes relayed to callers)
//   - Class, Field and Enum (generic value shapes produced by engines before normalization)
//   - CallOptions, Collector and Usage (per-call configuration passed through to engines)
//
// The package has no dependency on concrete engines, coordinators or
// normalizers so that every other package can build on it.
package core
