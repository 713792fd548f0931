package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"morse"
	"os"
	"strings"
)

// Console keyer: type text, the connected rig sends it as CW.
func main() {
	port := flag.String("port", "/dev/ttyUSB0", "CI-V serial port")
	baud := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	fmt.Printf("Connecting to rig on %s...\n", *port)
	client := morse.NewCIVClient(*port, *baud)
	if err := client.Open(); err != nil {
		log.Fatalf("open serial port: %v", err)
	}
	defer client.Close()

	if freq, err := client.ReadFrequency(); err == nil {
		if mode, err := client.ReadMode(); err == nil {
			fmt.Printf("Connected: %.4f MHz, %s\n", float64(freq)/1e6, mode)
		}
	}
	fmt.Println("Type text and press Enter to send CW. 'exit' to stop.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if low := strings.ToLower(input); low == "exit" || low == "quit" {
			break
		}

		text := strings.ToUpper(input)
		fmt.Printf("Sending: %s\n", text)
		if err := client.SendText(text); err != nil {
			log.Printf("send failed: %v", err)
		}
	}
	fmt.Println("Bye.")
}
