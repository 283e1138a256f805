//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"slices"
	"strings"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/normalize"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/climate/melcloud_12345/climate/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haSensor is a sensor discovery payload.
type haSensor struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Device            haDevice `json:"device"`
}

// haClimate is a climate discovery payload. Commands are rendered into
// intent JSON on the device's set topic.
type haClimate struct {
	Name                     string   `json:"name"`
	UniqueID                 string   `json:"unique_id"`
	AvailabilityTopic        string   `json:"availability_topic"`
	CurrentTemperatureTopic  string   `json:"current_temperature_topic"`
	CurrentTemperatureTmpl   string   `json:"current_temperature_template"`
	TemperatureStateTopic    string   `json:"temperature_state_topic"`
	TemperatureStateTemplate string   `json:"temperature_state_template"`
	TemperatureCommandTopic  string   `json:"temperature_command_topic"`
	TemperatureCommandTmpl   string   `json:"temperature_command_template"`
	ModeStateTopic           string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate        string   `json:"mode_state_template,omitempty"`
	ModeCommandTopic         string   `json:"mode_command_topic,omitempty"`
	ModeCommandTemplate      string   `json:"mode_command_template,omitempty"`
	Modes                    []string `json:"modes"`
	MinTemp                  float64  `json:"min_temp,omitempty"`
	MaxTemp                  float64  `json:"max_temp,omitempty"`
	TempStep                 float64  `json:"temp_step,omitempty"`
	TemperatureUnit          string   `json:"temperature_unit"`
	Device                   haDevice `json:"device"`
}

// deviceDisplayName returns a display name for the device.
func deviceDisplayName(v engine.View) string {
	if v.Name != "" {
		return v.Name
	}
	if v.State != nil && v.State.Name != "" {
		return v.State.Name
	}
	return v.ID
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(id string) string {
	return "melcloud_" + id
}

// deviceTopicName returns the topic segment for a device (its vendor id).
func deviceTopicName(id string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, id)
}

// buildDiscovery generates HA discovery messages for a device from its last
// normalized state. Devices that have not synchronized yet get none.
func buildDiscovery(v engine.View, prefix string) []discoveryMsg {
	if v.State == nil {
		return nil
	}
	st := new(normalize.State)
	*st = v.State.DisplayTemperatures()
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + deviceTopicName(v.ID) + "/state"
	setTopic := prefix + "/" + deviceTopicName(v.ID) + "/set"
	nodeID := deviceIdentifier(v.ID)
	displayName := deviceDisplayName(v)
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Mitsubishi Electric",
		Model:        familyModel(v.Family),
		Name:         displayName,
	}

	var msgs []discoveryMsg
	switch v.Family {
	case melcloud.FamilyAirConditioner, melcloud.FamilyVentilator:
		msgs = append(msgs, buildClimate(nodeID, "climate", displayName, stateTopic, setTopic, avail, haDev, st))
	case melcloud.FamilyHeatPump:
		for i, z := range st.Zones {
			if z.TargetTemperature == nil || z.Role == capability.RoleHeatPumpUnit {
				continue
			}
			msgs = append(msgs, buildZoneClimate(nodeID, displayName, stateTopic, setTopic, avail, haDev, st.DisplayUnit, i, z))
		}
	}

	caps := st.Capabilities
	if caps.HasOutdoorTemperature {
		msgs = append(msgs, buildSensor(nodeID, displayName, stateTopic, avail, haDev,
			"outdoor_temperature", "Outdoor Temperature", "temperature", "°"+st.DisplayUnit.Symbol(), "measurement",
			"{{ value_json.outdoor_temperature }}"))
	}
	if caps.HasCO2Sensor {
		msgs = append(msgs, buildSensor(nodeID, displayName, stateTopic, avail, haDev,
			"co2", "CO2", "carbon_dioxide", "ppm", "measurement",
			"{{ value_json.ventilation.co2 }}"))
	}
	if caps.HasPM25Sensor {
		msgs = append(msgs, buildSensor(nodeID, displayName, stateTopic, avail, haDev,
			"pm25", "PM2.5", "pm25", "µg/m³", "measurement",
			"{{ value_json.ventilation.pm25 }}"))
	}
	return msgs
}

func familyModel(f melcloud.Family) string {
	switch f {
	case melcloud.FamilyAirConditioner:
		return "Air-to-air"
	case melcloud.FamilyHeatPump:
		return "Air-to-water"
	case melcloud.FamilyVentilator:
		return "Lossnay"
	}
	return f.String()
}

// haModes maps the state's valid target values onto HA mode names. Power off
// is always available as "off".
func haModes(st *normalize.State) (names []string, byTarget map[int]string) {
	names = []string{"off"}
	byTarget = make(map[int]string)
	for _, t := range st.ValidTargets {
		slot, off, err := st.Presentation.ParseTarget(t)
		if err != nil || off {
			continue
		}
		byTarget[t] = slot.String()
		names = append(names, slot.String())
	}
	return names, byTarget
}

// commandValue renders the HA temperature value as Celsius for the intent.
func commandValue(u normalize.Unit) string {
	if u == normalize.Fahrenheit {
		return "{{ ((value | float - 32) * 5 / 9) | round(1) }}"
	}
	return "{{ value }}"
}

func buildClimate(nodeID, objectID, displayName, stateTopic, setTopic, avail string, haDev haDevice, st *normalize.State) discoveryMsg {
	names, byTarget := haModes(st)

	var stateMap, cmdMap []string
	for t, name := range byTarget {
		stateMap = append(stateMap, fmt.Sprintf("%d:'%s'", t, name))
		cmdMap = append(cmdMap, fmt.Sprintf("'%s':%d", name, t))
	}
	slices.Sort(stateMap)
	slices.Sort(cmdMap)
	modeState := "{% if not value_json.power %}off{% else %}{{ {" +
		strings.Join(stateMap, ",") + "}[value_json.target] }}{% endif %}"
	modeCommand := `{% if value == 'off' %}{"field":"Power","value":0}` +
		`{% else %}{"field":"TargetMode","value":{{ {` + strings.Join(cmdMap, ",") + `}[value] }}}{% endif %}`

	payload := haClimate{
		Name:                     displayName,
		UniqueID:                 nodeID + "_" + objectID,
		AvailabilityTopic:        avail,
		CurrentTemperatureTopic:  stateTopic,
		CurrentTemperatureTmpl:   "{{ value_json.room_temperature }}",
		TemperatureStateTopic:    stateTopic,
		TemperatureStateTemplate: "{{ value_json.target_temperature }}",
		TemperatureCommandTopic:  setTopic,
		TemperatureCommandTmpl:   `{"field":"TargetTemperature","value":` + commandValue(st.DisplayUnit) + `}`,
		ModeStateTopic:           stateTopic,
		ModeStateTemplate:        modeState,
		ModeCommandTopic:         setTopic,
		ModeCommandTemplate:      modeCommand,
		Modes:                    names,
		TempStep:                 st.TemperatureStep,
		TemperatureUnit:          st.DisplayUnit.Symbol(),
		Device:                   haDev,
	}
	if r := st.TargetRange; r != nil {
		payload.MinTemp, payload.MaxTemp = r.Min, r.Max
	}
	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/climate/%s/%s/config", nodeID, objectID),
		Payload: mustJSON(payload),
	}
}

// buildZoneClimate exposes one heat pump zone. Zone entries sit at their
// table position in the state's zones array.
func buildZoneClimate(nodeID, displayName, stateTopic, setTopic, avail string, haDev haDevice, unit normalize.Unit, idx int, z normalize.ZoneState) discoveryMsg {
	objectID := z.Role.String()
	zone := fmt.Sprintf("value_json.zones[%d]", idx)
	payload := haClimate{
		Name:                     displayName + " " + zoneLabel(z.Role),
		UniqueID:                 nodeID + "_" + objectID,
		AvailabilityTopic:        avail,
		CurrentTemperatureTopic:  stateTopic,
		CurrentTemperatureTmpl:   "{{ " + zone + ".current_temperature }}",
		TemperatureStateTopic:    stateTopic,
		TemperatureStateTemplate: "{{ " + zone + ".target_temperature }}",
		TemperatureCommandTopic:  setTopic,
		TemperatureCommandTmpl:   fmt.Sprintf(`{"field":"TargetTemperature","value":%s,"zone":%d}`, commandValue(unit), z.Position),
		Modes:                    []string{"heat"},
		TemperatureUnit:          unit.Symbol(),
		Device:                   haDev,
	}
	if r := z.TargetRange; r != nil {
		payload.MinTemp, payload.MaxTemp = r.Min, r.Max
	}
	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/climate/%s/%s/config", nodeID, objectID),
		Payload: mustJSON(payload),
	}
}

func zoneLabel(r capability.Role) string {
	switch r {
	case capability.RoleZone1:
		return "Zone 1"
	case capability.RoleZone2:
		return "Zone 2"
	case capability.RoleHotWater:
		return "Hot Water"
	}
	return "Unit"
}

func buildSensor(nodeID, displayName, stateTopic, avail string, haDev haDevice,
	objectID, suffix, deviceClass, unit, stateClass, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, objectID)
	payload := haSensor{
		Name:              displayName + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		UnitOfMeasurement: unit,
		DeviceClass:       deviceClass,
		StateClass:        stateClass,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty retained messages to remove a device from HA.
func buildRemoveDiscovery(id string) []discoveryMsg {
	nodeID := deviceIdentifier(id)

	components := []struct{ comp, obj string }{
		{"climate", "climate"},
		{"climate", capability.RoleZone1.String()},
		{"climate", capability.RoleZone2.String()},
		{"climate", capability.RoleHotWater.String()},
		{"sensor", "outdoor_temperature"},
		{"sensor", "co2"},
		{"sensor", "pm25"},
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
