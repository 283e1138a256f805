package melcloud

// EffectiveFlags bit values. Every write carries a mask naming exactly the
// fields the server should apply; unrelated fields in the body are ignored.

// Air conditioner (ATA).
const (
	FlagAtaPower          uint64 = 0x01
	FlagAtaOperationMode  uint64 = 0x02
	FlagAtaSetTemperature uint64 = 0x04
	FlagAtaFanSpeed       uint64 = 0x08
	FlagAtaVaneVertical   uint64 = 0x10
	FlagAtaProhibit       uint64 = 0x40
	FlagAtaVaneHorizontal uint64 = 0x100
)

// Air-to-water heat pump (ATW).
const (
	FlagAtwPower                   uint64 = 0x01
	FlagAtwOperationMode           uint64 = 0x02
	FlagAtwEcoHotWater             uint64 = 0x04
	FlagAtwOperationModeZone1      uint64 = 0x08
	FlagAtwOperationModeZone2      uint64 = 0x10
	FlagAtwSetTankWaterTemperature uint64 = 0x20
	FlagAtwProhibit                uint64 = 0x40
	FlagAtwForcedHotWaterMode      uint64 = 0x10000
	FlagAtwHolidayMode             uint64 = 0x20000
	FlagAtwProhibitHotWater        uint64 = 0x40000
	FlagAtwProhibitHeatingZone1    uint64 = 0x80000
	FlagAtwProhibitCoolingZone1    uint64 = 0x100000
	FlagAtwProhibitHeatingZone2    uint64 = 0x200000
	FlagAtwProhibitCoolingZone2    uint64 = 0x400000

	// Thermostatic zone targets always travel with their thermostat companion bit.
	FlagAtwSetTemperatureZone1 uint64 = 0x200000080
	FlagAtwSetTemperatureZone2 uint64 = 0x800000200

	FlagAtwSetHeatFlowTemperatureZone1 uint64 = 0x1000000000000
	FlagAtwSetHeatFlowTemperatureZone2 uint64 = 0x2000000000000
	FlagAtwSetCoolFlowTemperatureZone1 uint64 = 0x4000000000000
	FlagAtwSetCoolFlowTemperatureZone2 uint64 = 0x8000000000000
)

// Energy-recovery ventilator (ERV).
const (
	FlagErvPower           uint64 = 0x01
	FlagErvVentilationMode uint64 = 0x04
	FlagErvFanSpeed        uint64 = 0x08
)

// Raw ATA operation modes.
const (
	AtaModeHeat     = 1
	AtaModeDry      = 2
	AtaModeCool     = 3
	AtaModeFan      = 7
	AtaModeAuto     = 8
	AtaModeISeeHeat = 9
	AtaModeISeeDry  = 10
	AtaModeISeeCool = 11
)

// Raw ATA vane positions used by the swing intent.
const (
	VaneAuto            = 0
	VaneVerticalSwing   = 7
	VaneHorizontalSwing = 12
)

// Raw ATW unit operation state (read-only, reported by the unit).
const (
	AtwStateIdle       = 0
	AtwStateHotWater   = 1
	AtwStateHeating    = 2
	AtwStateCooling    = 3
	AtwStateNoVoltage  = 4
	AtwStateFreezeStat = 5
	AtwStateLegionella = 6
	AtwStateHeatingEco = 7
	AtwStateMode1      = 8
	AtwStateMode2      = 9
	AtwStateMode3      = 10
	AtwStateHeatingUp  = 11
)

// Raw ATW unit status (target of the heat pump unit itself).
const (
	AtwUnitHeat = 0
	AtwUnitCool = 1
)

// Raw ATW zone operation modes (OperationModeZone1/2).
const (
	AtwZoneHeatThermostat = 0
	AtwZoneHeatFlow       = 1
	AtwZoneHeatCurve      = 2
	AtwZoneCoolThermostat = 3
	AtwZoneCoolFlow       = 4
	AtwZoneFloorDryUp     = 5
)

// Raw ERV ventilation modes.
const (
	ErvModeRecovery = 0
	ErvModeBypass   = 1
	ErvModeAuto     = 2
)

// FanSpeedAuto is the sparse vendor code for automatic fan speed.
const FanSpeedAuto = 0
