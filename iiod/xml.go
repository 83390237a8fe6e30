package iiod

import (
	"context"
	"encoding/xml"
	"fmt"
)

// Device is one IIO device listed in the context XML.
type Device struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type contextXML struct {
	XMLName xml.Name `xml:"context"`
	Name    string   `xml:"name,attr"`
	Devices []Device `xml:"device"`
}

// ParseDevices extracts the device list from a context XML document.
func ParseDevices(data []byte) ([]Device, error) {
	var doc contextXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse context xml: %w", err)
	}
	return doc.Devices, nil
}

// Devices lists the devices of the remote context.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	data, err := c.ContextXML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseDevices(data)
}

// FindDevice returns the device whose name or id matches.
func FindDevice(devices []Device, name string) (Device, bool) {
	for _, d := range devices {
		if d.Name == name || d.ID == name {
			return d, true
		}
	}
	return Device{}, false
}
