package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PhotoKeyList stores the ordered gallery photo object keys as a JSON
// array in a single text column.
type PhotoKeyList []string

func (p PhotoKeyList) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PhotoKeyList) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PhotoKeyList", value)
	}

	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(p))
}
