package ssi

// NumChannels is the number of SSI ports per direction.
const NumChannels = 2

// CalibrationConfig holds the delay settings of both SSI ports in both
// directions. Index 0 is channel 1.
type CalibrationConfig struct {
	RxClkDelay    [NumChannels]uint8 `json:"rxClkDelay"`
	RxStrobeDelay [NumChannels]uint8 `json:"rxStrobeDelay"`
	RxIDataDelay  [NumChannels]uint8 `json:"rxIDataDelay"`
	RxQDataDelay  [NumChannels]uint8 `json:"rxQDataDelay"`
	TxClkDelay    [NumChannels]uint8 `json:"txClkDelay"`
	TxRefClkDelay [NumChannels]uint8 `json:"txRefClkDelay"`
	TxStrobeDelay [NumChannels]uint8 `json:"txStrobeDelay"`
	TxIDataDelay  [NumChannels]uint8 `json:"txIDataDelay"`
	TxQDataDelay  [NumChannels]uint8 `json:"txQDataDelay"`
}

// Set stores a clock/data pair for one port. The data delay applies to the
// strobe and both data lanes; the TX reference clock delay is left alone.
func (c *CalibrationConfig) Set(tx bool, idx int, clk, data uint8) {
	if tx {
		c.TxClkDelay[idx] = clk
		c.TxStrobeDelay[idx] = data
		c.TxIDataDelay[idx] = data
		c.TxQDataDelay[idx] = data
		return
	}
	c.RxClkDelay[idx] = clk
	c.RxStrobeDelay[idx] = data
	c.RxIDataDelay[idx] = data
	c.RxQDataDelay[idx] = data
}

// Get returns the clock delay and the I data delay of one port.
func (c CalibrationConfig) Get(tx bool, idx int) (clk, data uint8) {
	if tx {
		return c.TxClkDelay[idx], c.TxIDataDelay[idx]
	}
	return c.RxClkDelay[idx], c.RxIDataDelay[idx]
}
