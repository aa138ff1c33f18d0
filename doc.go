// Package modelfan provides a high-level façade for fanning one logical
// request out to multiple model backends concurrently and aggregating their
// responses. Most applications interact with this package by:
//  1. Creating a ModelFan via New() (optionally supplying a logger, gate or
//     tuned buffers)
//  2. Registering one or more targets (Anthropic, OpenAI, mocks) with
//     optional saved prompt customizations
//  3. Sending a request to a set of target ids and, when tool calls arrive,
//     resolving them through the approval gate
//
// The façade delegates orchestration to orchestrator.Orchestrator while
// keeping setup and usage ergonomics concise. All defaults are safe for
// local development and testing.
package modelfan
