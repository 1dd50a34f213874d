package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2024-06-30", want: "2024-06-30"},
		{in: "2024-06-30T00:00:00Z", want: "2024-06-30"},
		{in: "2024-06-30 10:11:12+00:00", want: "2024-06-30"},
		{in: "30/06/2024", wantErr: true},
		{in: "2024-13-01", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "use YYYY-MM-DD")

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Issued Date  `json:"issued"`
		Expiry *Date `json:"expiry"`
	}

	out, err := json.Marshal(payload{Issued: NewDate(2024, time.June, 30)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"issued":"2024-06-30","expiry":null}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"issued":"","expiry":"2027-01-02"}`), &in))
	assert.True(t, in.Issued.IsZero())
	require.NotNil(t, in.Expiry)
	assert.Equal(t, "2027-01-02", in.Expiry.String())

	require.Error(t, json.Unmarshal([]byte(`{"issued":"tomorrow"}`), &in))
	require.Error(t, json.Unmarshal([]byte(`{"issued":20240630}`), &in))
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    string
		wantErr bool
	}{
		{name: "nil", src: nil, want: ""},
		{name: "string", src: "2023-01-15", want: "2023-01-15"},
		{name: "bytes", src: []byte("2023-01-15"), want: "2023-01-15"},
		{name: "time", src: time.Date(2023, 1, 15, 23, 0, 0, 0, time.UTC), want: "2023-01-15"},
		{name: "empty string", src: "", want: ""},
		{name: "unsupported", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date

			err := d.Scan(tt.src)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestDate_Value(t *testing.T) {
	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewDate(2024, time.February, 29).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", v)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, clampLimit(0))
	assert.Equal(t, DefaultSearchLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, MaxSearchLimit, clampLimit(MaxSearchLimit+1))
}
