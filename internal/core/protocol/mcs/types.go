// Package mcs defines the entity wire types exchanged with the relay:
// typed component payloads, full object snapshots and object patches.
package mcs

import "fmt"

// DataType is the explicit type tag written before every component
// payload. Values are fixed by the relay.
type DataType uint64

const (
	DataTypeBool               DataType = 0
	DataTypeNullableBool       DataType = 1
	DataTypeInt64              DataType = 16
	DataTypeNullableInt64      DataType = 17
	DataTypeUInt64             DataType = 20
	DataTypeFloat              DataType = 24
	DataTypeFloatArray         DataType = 26
	DataTypeNullableFloatArray DataType = 27
	DataTypeDouble             DataType = 28
	DataTypeNullableDouble     DataType = 29
	DataTypeString             DataType = 32
	DataTypeStringArray        DataType = 33
	DataTypeNullableUInt16     DataType = 51
	DataTypeUInt16Dictionary   DataType = 54
	DataTypeStringDictionary   DataType = 55
	DataTypeDeleteComponent    DataType = 56
)

var dataTypeNames = map[DataType]string{
	DataTypeBool:               "BOOL",
	DataTypeNullableBool:       "NULLABLE_BOOL",
	DataTypeInt64:              "INT64",
	DataTypeNullableInt64:      "NULLABLE_INT64",
	DataTypeUInt64:             "UINT64",
	DataTypeFloat:              "FLOAT",
	DataTypeFloatArray:         "FLOAT_ARRAY",
	DataTypeNullableFloatArray: "NULLABLE_FLOAT_ARRAY",
	DataTypeDouble:             "DOUBLE",
	DataTypeNullableDouble:     "NULLABLE_DOUBLE",
	DataTypeString:             "STRING",
	DataTypeStringArray:        "STRING_ARRAY",
	DataTypeNullableUInt16:     "NULLABLE_UINT16",
	DataTypeUInt16Dictionary:   "UINT16_DICTIONARY",
	DataTypeStringDictionary:   "STRING_DICTIONARY",
	DataTypeDeleteComponent:    "DELETE_COMPONENT",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", uint64(t))
}

// Supported reports whether payloads of this type can be encoded and
// decoded. The nullable, string-array and delete tags are defined by the
// relay but never produced by this client.
func (t DataType) Supported() bool {
	switch t {
	case DataTypeBool, DataTypeInt64, DataTypeUInt64, DataTypeFloat, DataTypeDouble,
		DataTypeFloatArray, DataTypeString, DataTypeUInt16Dictionary, DataTypeStringDictionary:
		return true
	default:
		return false
	}
}

// MaxComponentKey bounds the keys of component maps and uint16 dictionaries.
const MaxComponentKey = 0xFFFF
