package repack

// Info assembles the metadata object embedded at the head of every
// APXTLM file. The encoder serializes it verbatim as the "info" jso
// record; timestamp and utc_offset are always present, other unset
// fields are omitted from the payload.
type Info struct {
	// Title is the recording title, by convention the input file stem.
	Title string

	// Import describes the source file the stream was repacked from.
	ImportName      string
	ImportTitle     string
	ImportFormat    string
	ImportTimestamp int64 // ms since Unix epoch (source mtime)

	// Unit describes the recorded unit when the source exposes one.
	UnitName string
	UnitType string
	UnitUID  string
	UnitTime uint64 // ms since Unix epoch

	// Timestamp is the recording start, truncated to unsigned 32 bits.
	Timestamp uint32 // ms
	// UTCOffset is the recording's UTC offset in seconds.
	UTCOffset int32
}

// Object renders the info payload. timestamp and utc_offset are always
// included; other unset fields are omitted. The unit block appears only
// when a unit name or UID is supplied.
func (i Info) Object() map[string]any {
	obj := map[string]any{
		"timestamp":  i.Timestamp,
		"utc_offset": i.UTCOffset,
	}
	if i.Title != "" {
		obj["title"] = i.Title
	}

	imp := map[string]any{}
	if i.ImportName != "" {
		imp["name"] = i.ImportName
	}
	if i.ImportTitle != "" {
		imp["title"] = i.ImportTitle
	}
	if i.ImportFormat != "" {
		imp["format"] = i.ImportFormat
	}
	if i.ImportTimestamp != 0 {
		imp["timestamp"] = i.ImportTimestamp
	}
	if len(imp) > 0 {
		obj["import"] = imp
	}

	if i.UnitName != "" || i.UnitUID != "" {
		unit := map[string]any{}
		if i.UnitName != "" {
			unit["name"] = i.UnitName
		}
		if i.UnitTime != 0 {
			unit["time"] = i.UnitTime
		}
		if i.UnitType != "" {
			unit["type"] = i.UnitType
		}
		if i.UnitUID != "" {
			unit["uid"] = i.UnitUID
		}
		obj["unit"] = unit
	}

	return obj
}
