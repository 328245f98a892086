/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.*/

package emisgrid

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// tableSchema is incremented whenever the layout of WeightTable or
// NearestTable changes, so that stale cached tables are rebuilt.
const tableSchema = 1

type (
	weightTableData  WeightTable
	nearestTableData NearestTable
)

type weightTableEnvelope struct {
	Schema int
	Table  *weightTableData
}

type nearestTableEnvelope struct {
	Schema int
	Table  *nearestTableData
}

// MarshalBinary encodes the table as zstd-compressed gob.
func (wt *WeightTable) MarshalBinary() ([]byte, error) {
	return encodeTable(weightTableEnvelope{Schema: tableSchema, Table: (*weightTableData)(wt)})
}

// UnmarshalBinary decodes a table encoded by MarshalBinary.
func (wt *WeightTable) UnmarshalBinary(b []byte) error {
	var e weightTableEnvelope
	if err := decodeTable(b, &e); err != nil {
		return err
	}
	if e.Schema != tableSchema || e.Table == nil {
		return fmt.Errorf("emisgrid: weight table schema %d does not match %d", e.Schema, tableSchema)
	}
	*wt = WeightTable(*e.Table)
	return nil
}

// MarshalBinary encodes the table as zstd-compressed gob.
func (nt *NearestTable) MarshalBinary() ([]byte, error) {
	return encodeTable(nearestTableEnvelope{Schema: tableSchema, Table: (*nearestTableData)(nt)})
}

// UnmarshalBinary decodes a table encoded by MarshalBinary.
func (nt *NearestTable) UnmarshalBinary(b []byte) error {
	var e nearestTableEnvelope
	if err := decodeTable(b, &e); err != nil {
		return err
	}
	if e.Schema != tableSchema || e.Table == nil {
		return fmt.Errorf("emisgrid: nearest-cell table schema %d does not match %d", e.Schema, tableSchema)
	}
	*nt = NearestTable(*e.Table)
	return nil
}

func encodeTable(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	zw, err := zstd.NewWriter(&b)
	if err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return nil, fmt.Errorf("emisgrid: encoding table: %v", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("emisgrid: compressing table: %v", err)
	}
	return b.Bytes(), nil
}

func decodeTable(b []byte, v interface{}) error {
	zr, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("emisgrid: decompressing table: %v", err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("emisgrid: decoding table: %v", err)
	}
	return nil
}
