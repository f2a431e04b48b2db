package hub

import (
	"encoding/json"

	"ha-floorplan/pkg/layout"
)

// strippedStateFields не нужны клиентам и только раздувают push.
var strippedStateFields = []string{"context", "last_changed", "last_updated", "last_reported"}

// DecodeState разбирает сырое состояние хаба, отбрасывая служебные поля.
func DecodeState(raw json.RawMessage) (layout.State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return layout.State{}, err
	}
	for _, k := range strippedStateFields {
		delete(fields, k)
	}

	var st layout.State
	if v, ok := fields["entity_id"]; ok {
		if err := json.Unmarshal(v, &st.EntityID); err != nil {
			return layout.State{}, err
		}
	}
	if v, ok := fields["state"]; ok {
		if err := json.Unmarshal(v, &st.State); err != nil {
			return layout.State{}, err
		}
	}
	if v, ok := fields["attributes"]; ok {
		if err := json.Unmarshal(v, &st.Attributes); err != nil {
			return layout.State{}, err
		}
	}
	return st, nil
}

// DecodeStates разбирает ответ get_states в карту по entity_id.
func DecodeStates(raw json.RawMessage) (States, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	out := make(States, len(list))
	for _, item := range list {
		st, err := DecodeState(item)
		if err != nil {
			return nil, err
		}
		if st.EntityID == "" {
			continue
		}
		out[st.EntityID] = st
	}
	return out, nil
}
