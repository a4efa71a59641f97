package models

// Record is anything the pipeline writers can serialize.
type Record interface {
	CSVRecord() []string
	JSONRecord() any
}
