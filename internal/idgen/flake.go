// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/sonyflake"
)

var DefaultFlakeGenerator *SonyFlakeGenerator

func init() {
	var err error
	DefaultFlakeGenerator, err = newFlakeGenerator(machineIDFrom(privateIPv4ID))
	if err != nil {
		panic(err)
	}
}

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// machineIDFrom returns a sonyflake machine id source that uses private
// and falls back to a hash of the host name and pid when it fails.
func machineIDFrom(private func() (uint16, error)) func() (uint16, error) {
	return func() (uint16, error) {
		if id, err := private(); err == nil {
			return id, nil
		}
		return hostMachineID(), nil
	}
}

// privateIPv4ID returns the lower 16 bits of the first private IPv4
// address, like sonyflake's default.
func privateIPv4ID() (uint16, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil && ip.IsPrivate() {
			return uint16(ip[2])<<8 | uint16(ip[3]), nil
		}
	}
	return 0, errors.New("no private ip address")
}

func hostMachineID() uint16 {
	host, _ := os.Hostname()
	return uint16(xxhash.Sum64String(host + ":" + strconv.Itoa(os.Getpid())))
}

func newFlakeGenerator(machineID func() (uint16, error)) (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: machineID,
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (sf *SonyFlakeGenerator) NextID() int64 {
	v, err := sf.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// NextBase32ID returns NextID as lower-case unpadded base32.
func (sf *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(sf.NextID()))
	return strings.ToLower(base32NoPad.EncodeToString(b[:]))
}

// NextBase32ID returns an id from the default generator.
func NextBase32ID() string {
	return DefaultFlakeGenerator.NextBase32ID()
}

// InstanceID identifies this process in logs and telemetry.
func InstanceID() string {
	return strconv.FormatInt(DefaultFlakeGenerator.NextID(), 10)
}
