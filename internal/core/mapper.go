package core

// MapRecords applies the definition's mapper to every raw row. The result has
// exactly len(rows) records in the same order; record i has Position i.
func MapRecords(def Definition, rows []RawRow, params SharedParams) []MappedRecord {
	params = params.Normalize()
	out := make([]MappedRecord, len(rows))
	for i, row := range rows {
		out[i] = MappedRecord{
			Position: i,
			Payload:  def.Map(row, params),
		}
	}
	return out
}

// mappingCache memoizes MapRecords for one (rows, params) revision pair so
// that readers always see records derived from the current inputs.
type mappingCache struct {
	rowsRev   int
	paramsRev int
	records   []MappedRecord
	valid     bool
}

func (c *mappingCache) get(def Definition, rows []RawRow, rowsRev int, params SharedParams, paramsRev int) []MappedRecord {
	if c.valid && c.rowsRev == rowsRev && c.paramsRev == paramsRev {
		return c.records
	}
	c.records = MapRecords(def, rows, params)
	c.rowsRev = rowsRev
	c.paramsRev = paramsRev
	c.valid = true
	return c.records
}

func (c *mappingCache) reset() {
	*c = mappingCache{}
}
