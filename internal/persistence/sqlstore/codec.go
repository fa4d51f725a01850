package sqlstore

import (
	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
)

// Codec serialises cubes for the revision table
type Codec interface {
	Marshal(c cube.Cube) ([]byte, error)
	Unmarshal(data []byte) (cube.Cube, error)
}

// TableCodec moves reference table cubes through their simple JSON form
type TableCodec struct{}

// Marshal implements Codec
func (TableCodec) Marshal(c cube.Cube) ([]byte, error) {
	tc, ok := c.(*cube.TableCube)
	if !ok {
		return nil, cuberr.Statef("sqlstore can only persist table cubes, got %T", c)
	}
	return tc.ToSimpleJSON()
}

// Unmarshal implements Codec
func (TableCodec) Unmarshal(data []byte) (cube.Cube, error) {
	return cube.FromSimpleJSON(data)
}
