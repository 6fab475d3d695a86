package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	my := NewConfig("", "root", "secret", "127.0.0.1", "3306", "tradeflow")
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/tradeflow?charset=utf8mb4&parseTime=true&loc=Local", my.DSN())

	pg := NewConfig(DriverPostgres, "trader", "pw", "db", "", "tradeflow")
	assert.Equal(t, "host=db user=trader password=pw dbname=tradeflow port=5432 sslmode=disable TimeZone=UTC", pg.DSN())
}

func TestDialector(t *testing.T) {
	_, err := Config{Driver: "sqlite"}.dialector()
	require.Error(t, err)

	d, err := NewConfig(DriverPostgres, "u", "p", "h", "5432", "db").dialector()
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}
