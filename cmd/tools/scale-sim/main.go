package main

// Simulates a weighing scale for bench testing scalepoll without hardware.
//
//	ascii: answers command lines on a serial port with weight lines
//	rtu:   Modbus RTU slave exposing the weight as input registers
//	tcp:   Modbus TCP slave exposing the weight as input registers
//
// The simulated weight ramps from -start by -step every -ramp interval.

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/goburrow/serial"
	tcpsim "github.com/tbrandon/mbserver"
	rtusim "github.com/womat/mbserver"
)

func main() {
	mode := flag.String("mode", "ascii", "simulator mode: ascii | rtu | tcp")
	port := flag.String("port", "/dev/ttyUSB0", "serial port (ascii, rtu)")
	baud := flag.Int("baud", 9600, "baud rate (ascii, rtu)")
	addr := flag.String("addr", ":1502", "listen address (tcp)")
	unitID := flag.Int("unitid", 1, "modbus unit id (rtu, tcp)")
	register := flag.Int("register", 0, "first weight input register (rtu, tcp)")
	count := flag.Int("count", 2, "weight register count, 1 or 2 (rtu, tcp)")
	divisor := flag.Int("divisor", 100, "register scaling divisor (rtu, tcp)")
	unit := flag.String("unit", "kg", "unit label (ascii)")
	start := flag.Float64("start", 12.5, "starting weight")
	step := flag.Float64("step", 0.25, "weight increment per ramp interval")
	ramp := flag.Duration("ramp", 5*time.Second, "ramp interval")
	flag.Parse()

	begin := time.Now()
	weightAt := func() float64 {
		steps := math.Floor(float64(time.Since(begin)) / float64(*ramp))
		return *start + *step*steps
	}

	switch *mode {
	case "ascii":
		runAscii(*port, *baud, *unit, weightAt)
	case "rtu":
		runModbusRTU(*port, *baud, uint8(*unitID), *register, *count, *divisor, weightAt)
	case "tcp":
		runModbusTCP(*addr, *register, *count, *divisor, weightAt)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

// runAscii replies to every terminated command line with one weight line,
// the way demand-mode scales answer a print request.
func runAscii(address string, baud int, unit string, weightAt func() float64) {
	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("serial open %s: %v", address, err)
	}
	defer port.Close()
	log.Printf("ascii scale simulator on %s (%d baud)", address, baud)

	buf := make([]byte, 64)
	pending := 0 // command bytes seen since the last terminator
	for {
		n, err := port.Read(buf)
		if err != nil && err != serial.ErrTimeout {
			log.Fatalf("serial read: %v", err)
		}
		for _, b := range buf[:n] {
			if b != '\r' && b != '\n' {
				pending++
				continue
			}
			if pending == 0 {
				continue // trailing LF of a CRLF command
			}
			pending = 0
			line := fmt.Sprintf("%+08.2f %s\r\n", weightAt(), unit)
			if _, err := port.Write([]byte(line)); err != nil {
				log.Fatalf("serial write: %v", err)
			}
		}
	}
}

func runModbusRTU(address string, baud int, unitID uint8, register, count, divisor int, weightAt func() float64) {
	srv := rtusim.NewServer()
	if unitID != 1 {
		if err := srv.NewDevice(unitID); err != nil {
			log.Fatalf("NewDevice(%d): %v", unitID, err)
		}
	}
	dev, ok := srv.Devices[unitID]
	if !ok {
		log.Fatalf("no device %d", unitID)
	}

	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  2 * time.Second,
	})
	if err != nil {
		log.Fatalf("serial open %s: %v", address, err)
	}
	defer port.Close()

	if err := srv.ListenRTU(port); err != nil {
		log.Fatalf("listenRTU: %v", err)
	}
	log.Printf("modbus rtu scale simulator on %s (unit %d, register %d)", address, unitID, register)

	for {
		setWeightRegisters(dev.InputRegisters, register, count, divisor, weightAt())
		time.Sleep(250 * time.Millisecond)
	}
}

func runModbusTCP(addr string, register, count, divisor int, weightAt func() float64) {
	srv := tcpsim.NewServer()
	if err := srv.ListenTCP(addr); err != nil {
		log.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()
	log.Printf("modbus tcp scale simulator on %s (register %d)", addr, register)

	for {
		setWeightRegisters(srv.InputRegisters, register, count, divisor, weightAt())
		time.Sleep(250 * time.Millisecond)
	}
}

func setWeightRegisters(regs []uint16, register, count, divisor int, weight float64) {
	raw := int64(math.Round(weight * float64(divisor)))
	if count == 2 {
		regs[register] = uint16(uint32(raw) >> 16)
		regs[register+1] = uint16(uint32(raw))
	} else {
		regs[register] = uint16(int16(raw))
	}
}
