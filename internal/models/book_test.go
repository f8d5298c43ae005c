package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemRef(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ItemRef
		wantErr bool
	}{
		{name: "local id", raw: "42", want: ItemRef{Kind: ItemRefLocal, LocalID: 42}},
		{name: "google volume", raw: "zyTCAlFPjgYC", want: ItemRef{Kind: ItemRefExternal, ExternalID: "zyTCAlFPjgYC"}},
		{name: "open library work", raw: "OL_OL45804W", want: ItemRef{Kind: ItemRefExternal, ExternalID: "OL_OL45804W"}},
		{name: "numeric-looking but huge", raw: "99999999999999999999", want: ItemRef{Kind: ItemRefExternal, ExternalID: "99999999999999999999"}},
		{name: "trims whitespace", raw: " 7 ", want: ItemRef{Kind: ItemRefLocal, LocalID: 7}},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "zero", raw: "0", wantErr: true},
		{name: "negative", raw: "-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseItemRef(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidItemRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemRefString(t *testing.T) {
	assert.Equal(t, "42", ItemRef{Kind: ItemRefLocal, LocalID: 42}.String())
	assert.Equal(t, "OL_OL45804W", ItemRef{Kind: ItemRefExternal, ExternalID: "OL_OL45804W"}.String())
}

func TestIsTerminalReservationStatus(t *testing.T) {
	assert.False(t, IsTerminalReservationStatus(ReservationStatusActive))
	assert.False(t, IsTerminalReservationStatus(ReservationStatusReady))
	assert.True(t, IsTerminalReservationStatus(ReservationStatusCompleted))
	assert.True(t, IsTerminalReservationStatus(ReservationStatusCancelled))
	assert.True(t, IsTerminalReservationStatus(ReservationStatusExpired))
}
