package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/dbus-service/types"
)

func arrivalReply(items ...string) string {
	body := `<div id="prox_lle"><h3>Próximas llegadas</h3><ul>`
	for _, item := range items {
		body += "<li>" + item + "</li>"
	}
	return body + `</ul></div>`
}

func TestMinutesUntilClockTime(t *testing.T) {
	loc := madrid(t)

	tests := []struct {
		name string
		text string
		now  time.Time
		want int
	}{
		{name: "later today", text: " 23:58", now: time.Date(2026, 3, 10, 23, 50, 0, 0, loc), want: 8},
		{name: "already passed rolls to tomorrow", text: " 23:58", now: time.Date(2026, 3, 10, 23, 59, 0, 0, loc), want: 1439},
		{name: "equal rolls to tomorrow", text: "23:58", now: time.Date(2026, 3, 10, 23, 58, 0, 0, loc), want: 1440},
		{name: "partial minute floors", text: "08:15", now: time.Date(2026, 3, 10, 8, 10, 30, 0, loc), want: 4},
		{name: "after midnight", text: "00:05", now: time.Date(2026, 3, 10, 23, 55, 0, 0, loc), want: 10},
		{name: "single digit hour", text: "Linea 5: 9:05", now: time.Date(2026, 3, 10, 8, 50, 0, 0, loc), want: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinutesUntil(tt.text, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinutesUntilCountdown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t))

	got, err := MinutesUntil(" 7 min", now)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = MinutesUntil("12min.", now)
	require.NoError(t, err)
	assert.Equal(t, 12, got)
}

func TestMinutesUntilUnrecognized(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t))

	for _, text := range []string{"sin servicio", "", "25:99"} {
		_, err := MinutesUntil(text, now)
		assert.ErrorIs(t, err, types.ErrParse, text)
	}
}

func TestParseArrival(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, madrid(t))

	got, err := ParseArrival([]byte(arrivalReply("Linea 28: 3 min", "Linea 5: 23:58")), "5", now)
	require.NoError(t, err)
	assert.Equal(t, 1439, got)
}

func TestParseArrivalOtherLineOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t))

	_, err := ParseArrival([]byte(arrivalReply("Linea 28: 3 min")), "5", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTimeNotFound)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "time not found")
}

func TestParseArrivalUnparsableEntry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t))

	_, err := ParseArrival([]byte(arrivalReply("Linea 5: sin datos")), "5", now)
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestBuildArrivalFormPadsFields(t *testing.T) {
	now := time.Date(2026, 1, 5, 7, 3, 0, 0, madrid(t))

	form := BuildArrivalForm("tok", "05", "2", now)

	assert.Equal(t, "calcula_parada", form.Get("action"))
	assert.Equal(t, "tok", form.Get("security"))
	assert.Equal(t, "05", form.Get("linea"))
	assert.Equal(t, "2", form.Get("parada"))
	assert.Equal(t, "05", form.Get("dia"))
	assert.Equal(t, "01", form.Get("mes"))
	assert.Equal(t, "2026", form.Get("year"))
	assert.Equal(t, "07", form.Get("hora"))
	assert.Equal(t, "03", form.Get("minuto"))
}
