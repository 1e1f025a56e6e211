package common

// HookPrefix is shared by every hook symbol the instrumentor emits.
// Functions whose names carry this prefix are never themselves
// instrumented, which keeps the pass idempotent.
const HookPrefix = "__hw_"

// RuntimePrefix marks symbols owned by the load-time runtime rather
// than by per-unit instrumentation.
const RuntimePrefix = "__hwrt_"

// UnitInitFunction is the per-unit initialization routine the
// instrumentor synthesizes and registers to run before ordinary
// program code.
const UnitInitFunction = RuntimePrefix + "unit_init"

// UnitCtorName is the constructor that calls UnitInitFunction.
const UnitCtorName = RuntimePrefix + "unit_ctor"

// UnitCtorPriority orders the synthesized constructor ahead of
// ordinary program constructors.
const UnitCtorPriority = 65535

// FuncIDVariablePrefix prefixes the per-function global that holds a
// function's global FunctionEntry ID, readable from any unit.
const FuncIDVariablePrefix = HookPrefix + "func_id_"

// InterposePrefix prefixes generated call-interposition thunk symbols.
const InterposePrefix = HookPrefix + "interpose_"
