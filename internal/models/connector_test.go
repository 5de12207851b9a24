package models

import (
	"encoding/json"
	"testing"
)

func TestValidCategory(t *testing.T) {
	valid := []Category{
		CategoryMarketData, CategoryNews, CategoryTechnical,
		CategoryFundamental, CategoryEconomic, CategoryCrypto,
	}
	for _, c := range valid {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false, want true", c)
		}
	}

	for _, c := range []Category{"", "weather", "Market-Data"} {
		if ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = true, want false", c)
		}
	}
}

func TestPayloadEmpty(t *testing.T) {
	if !(Payload{}).Empty() {
		t.Error("zero payload should be empty")
	}
	if (Payload{Records: []NormalizedRecord{{Symbol: "X"}}}).Empty() {
		t.Error("payload with records should not be empty")
	}
	if (Payload{Raw: json.RawMessage(`{}`)}).Empty() {
		t.Error("payload with raw data should not be empty")
	}
}
