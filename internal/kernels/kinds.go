package kernels

// Operator kinds with a reference kernel.
const (
	KindConst       = "Const"
	KindPlaceholder = "Placeholder"
	KindIdentity    = "Identity"
	KindNoOp        = "NoOp"
	KindReshape     = "Reshape"
	KindShape       = "Shape"
	KindAll         = "All"
	KindAssert      = "Assert"

	KindAdd     = "Add"
	KindSub     = "Sub"
	KindMul     = "Mul"
	KindAddN    = "AddN"
	KindSquare  = "Square"
	KindSign    = "Sign"
	KindNeg     = "Neg"
	KindEqual   = "Equal"
	KindLess    = "Less"
	KindGreater = "Greater"

	KindRandomNormal  = "RandomNormal"
	KindRandomUniform = "RandomUniform"

	KindVariable        = "Variable"
	KindAssign          = "Assign"
	KindHashTable       = "HashTable"
	KindInitializeTable = "InitializeTable"
	KindLookupTableFind = "LookupTableFind"

	KindFIFOQueue    = "FIFOQueue"
	KindQueueEnqueue = "QueueEnqueue"
	KindQueueDequeue = "QueueDequeue"
	KindQueueClose   = "QueueClose"
	KindQueueSize    = "QueueSize"

	KindEnter         = "Enter"
	KindMerge         = "Merge"
	KindSwitch        = "Switch"
	KindLoopCond      = "LoopCond"
	KindNextIteration = "NextIteration"
	KindExit          = "Exit"
)
