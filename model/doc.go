// Package model defines the provider-agnostic boundary to the engines that
// execute functions, plus concrete helpers shared by provider adapters.
//
// Core goals:
//   - A single blocking streaming call (StreamCall) that pushes interim
//     results to a Sink, observes a core.Token, and returns exactly one
//     terminal result
//   - A non-streaming counterpart (Call) for the synchronous request path
//   - Structured-output accumulation with partial-JSON repair (Accumulator)
//   - Lightweight scripted fakes for tests and examples (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so the stream coordinator remains decoupled from vendor SDKs.
package model
