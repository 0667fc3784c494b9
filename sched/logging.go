package sched

// Params.Logger has no explicit default assignment here: a zero-value
// zerolog.Logger is already a valid, silent logger (no writer attached),
// which is exactly the "defaults to zerolog.Nop()" behavior callers expect
// when they don't set Logger. Callers that want diagnostics wire a real
// zerolog.Logger into Params.Logger, same as any other zerolog consumer.
