package schedule

import "time"

// Generated naming and tunables. Names end up in artifacts; changing them
// breaks uninstall of older installs.
const (
	DefaultPrefix      = "PMux_"
	DefaultSyncingTag  = "PMux_Syncing"
	DefaultLoweringTag = "PMux_Lowering"

	IndexerName     = "Indexer "
	BoolSyncerName  = "BoolSyncer "
	WideSyncerName  = "WideSyncer "
	SmoothingName   = "ParamSmoothing"
	IsLocalName     = "IsLocal"
	CopySuffix      = "_Copy"
	SmoothedSuffix  = "_S"
	DeltaSuffix     = "_Delta"
	SyncingLayer    = "Syncing"
	ChangeTreeLayer = "ChangeDetection"
)

// State names inside the generated machines.
const (
	StateEntry       = "Entry"
	StateSetPrefix   = "Set_"
	StateResettle    = "Resettle_"
	StateWait        = "WaitForIndexer"
	StateRecvPrefix  = "RecvSet_"
	NoSlot           = -1
	resettleFraction = 4
)

const (
	DefaultSlotCount = 2
	DefaultStepDelay = 200 * time.Millisecond

	// MaxSlotCount is the ceiling applied unless the user unlocks it.
	MaxSlotCount         = 4
	UnlockedMaxSlotCount = 32

	DefaultSensitivity = 0.05
	DefaultSmoothing   = 0.1
)
