package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ticker24h is the /ticker/24hr response. Binance quotes numbers as strings.
type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	OpenPrice          string `json:"openPrice"`
}

// kline is one /klines entry. The wire format is a heterogeneous array:
// [openTime, open, high, low, close, volume, closeTime, ...].
type kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

func (k *kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 6 {
		return fmt.Errorf("binance: kline needs 6 fields, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &k.OpenTime); err != nil {
		return fmt.Errorf("binance: kline open time: %w", err)
	}
	fields := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
	for i, dst := range fields {
		var s string
		if err := json.Unmarshal(raw[i+1], &s); err != nil {
			return fmt.Errorf("binance: kline field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("binance: kline field %d: %w", i+1, err)
		}
		*dst = v
	}
	return nil
}

// depth is the /depth response; levels arrive as ["price","quantity"] pairs.
type depth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func parseLevel(raw [2]string) (price, quantity float64, err error) {
	if price, err = strconv.ParseFloat(raw[0], 64); err != nil {
		return 0, 0, fmt.Errorf("binance: level price %q: %w", raw[0], err)
	}
	if quantity, err = strconv.ParseFloat(raw[1], 64); err != nil {
		return 0, 0, fmt.Errorf("binance: level quantity %q: %w", raw[1], err)
	}
	return price, quantity, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
