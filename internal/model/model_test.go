package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalcorp/edgebridge/internal/model"
)

func TestValue_Float(t *testing.T) {
	t.Parallel()

	f, ok := model.FloatValue(3.25).Float()
	require.True(t, ok)
	assert.InDelta(t, 3.25, f, 0)

	i, ok := model.IntValue(42).Float()
	require.True(t, ok)
	assert.InDelta(t, 42.0, i, 0)

	_, ok = model.BoolValue(true).Float()
	assert.False(t, ok)

	_, ok = model.StringValue("running").Float()
	assert.False(t, ok)
}

func TestValue_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value model.Value
		want  string
	}{
		{name: "float trims trailing zeros", value: model.FloatValue(1.0), want: "1"},
		{name: "float keeps fraction", value: model.FloatValue(1.5), want: "1.5"},
		{name: "int", value: model.IntValue(7), want: "7"},
		{name: "bool", value: model.BoolValue(true), want: "true"},
		{name: "string", value: model.StringValue("Running"), want: "Running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.value.Text())
		})
	}
}

func TestValue_In(t *testing.T) {
	t.Parallel()

	truthy := []string{"running", "on", "1", "true"}

	assert.True(t, model.StringValue("Running").In(truthy...))
	assert.True(t, model.StringValue("ON").In(truthy...))
	assert.True(t, model.IntValue(1).In(truthy...))
	assert.True(t, model.FloatValue(1.0).In(truthy...))
	assert.True(t, model.BoolValue(true).In(truthy...))

	assert.False(t, model.StringValue("stopped").In(truthy...))
	assert.False(t, model.IntValue(0).In(truthy...))
	assert.False(t, model.BoolValue(false).In(truthy...))
}

func TestValue_EncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	values := []model.Value{
		model.FloatValue(98.6),
		model.IntValue(-3),
		model.BoolValue(true),
		model.StringValue("fault: overtemp"),
	}

	for _, v := range values {
		kind, text := model.EncodeValue(v)

		got, err := model.DecodeValue(kind, text)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecodeValue_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := model.DecodeValue("complex", "1+2i")
	require.Error(t, err)
}

func TestValueFrom_WireTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.KindFloat, model.ValueFrom(float32(2.5)).Kind())
	assert.Equal(t, model.KindInt, model.ValueFrom(int32(9)).Kind())
	assert.Equal(t, model.KindInt, model.ValueFrom(uint16(9)).Kind())
	assert.Equal(t, model.KindBool, model.ValueFrom(true).Kind())
	assert.Equal(t, model.KindString, model.ValueFrom("idle").Kind())

	// Unknown types fall back to string rendering.
	assert.Equal(t, model.KindString, model.ValueFrom([]int{1}).Kind())
}

func TestAnomalyRecord_FieldsFlattening(t *testing.T) {
	t.Parallel()

	rec := model.AnomalyRecord{
		Timestamp:              time.Now().UTC(),
		AssetName:              "Press01",
		Tag:                    "BatterySoC",
		CurrentValue:           41.2,
		BaselineMean:           72.0,
		ZScore:                 3.1,
		IsAnomaly:              true,
		PredictionHorizonHours: 24,
		EnergyAnomalies: map[string]model.EnergyAnomaly{
			"battery_soc_drop": {
				Severity: "high",
				Values:   map[string]float64{"drop_percent": 31.4},
			},
		},
	}

	fields := rec.Fields()

	assert.Equal(t, true, fields["is_anomaly"])
	assert.Equal(t, "BatterySoC", fields["tag"])
	assert.InDelta(t, 3.1, fields["z_score"].(float64), 1e-9)
	assert.Equal(t, true, fields["battery_soc_drop_detected"])
	assert.Equal(t, "high", fields["battery_soc_drop_severity"])
	assert.InDelta(t, 31.4, fields["battery_soc_drop_drop_percent"].(float64), 1e-9)
}

func TestParseQuality(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.QualityBad, model.ParseQuality("BAD"))
	assert.Equal(t, model.QualityUncertain, model.ParseQuality("UNCERTAIN"))
	assert.Equal(t, model.QualityGood, model.ParseQuality("GOOD"))
	assert.Equal(t, model.QualityGood, model.ParseQuality("bogus"))
}
