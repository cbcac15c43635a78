// Package engine contains the headless arena simulation and its fixed-step loop.
//
// ARCHITECTURAL RULE: The Engine owns all tank state. The bridge never
// touches tanks directly; it reads views and writes controls through the
// bridge.World methods.
package engine
