package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"unicode"

	"github.com/n2code/heatwave"
	"golang.org/x/term"
)

// assignHotkeys picks the first letter of each option not taken by an earlier option.
// The returned labels mark that letter, either underlined or in brackets.
func assignHotkeys(options []string, allowEscapeSequences bool) (letterToChoice map[rune]string, labels []string) {
	letterToChoice = make(map[rune]string)
NextOption:
	for _, option := range options {
		for i, letter := range option {
			lower, upper := unicode.ToLower(letter), unicode.ToUpper(letter)
			if _, taken := letterToChoice[lower]; taken {
				continue
			}
			letterToChoice[lower] = option
			letterToChoice[upper] = option
			marked := fmt.Sprintf("[%c]", letter)
			if allowEscapeSequences {
				marked = fmt.Sprintf("\x1B[1m\x1B[4m%c\x1B[0m", letter)
			}
			labels = append(labels, option[:i]+marked+option[i+len(string(letter)):])
			continue NextOption
		}
		labels = append(labels, option) //no free letter, cannot be chosen
	}
	return
}

// PromptUser asks on the terminal and waits for a single key, with raw mode if escape sequences are allowed.
func PromptUser(out io.Writer, allowEscapeSequences bool) heatwave.RequestChoice {
	return func(request string, options []string, cleanup bool) (choice string) {
		letterToChoice, labels := assignHotkeys(options, allowEscapeSequences)

		key := make(chan rune)
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		rawMode := false
		rawOut := func(text string) {
			if rawMode {
				fmt.Fprint(out, text)
			}
		}
		if allowEscapeSequences {
			if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
				rawMode = true
				defer term.Restore(int(os.Stdin.Fd()), oldState)
			} //otherwise ENTER confirms the key
		}

		waitForKey := func() {
			reader := bufio.NewReaderSize(os.Stdin, 1)
			input, _ := reader.ReadByte()
			if !rawMode && reader.Buffered() > 0 {
				if extra, _ := reader.ReadByte(); extra != '\n' && extra != '\r' {
					key <- '?'
					return
				}
			}
			if rawMode && input == 3 { //Ctrl+C
				interrupt <- os.Interrupt
				return
			}
			rawOut(string(unicode.ToUpper(rune(input))))
			key <- rune(input)
		}

		prompt := fmt.Sprintf("%s (%s): ", request, strings.Join(labels, " / "))
		fmt.Fprint(out, prompt)
		for {
			go waitForKey()
			select {
			case pressed := <-key:
				if selection, found := letterToChoice[pressed]; found {
					if cleanup {
						rawOut("\033[2K\r")
					} else {
						rawOut("\r\n")
					}
					return selection
				}
				rawOut("\a\033[1D")
				if !rawMode {
					fmt.Fprint(out, prompt)
				}
			case <-interrupt:
				fmt.Fprint(out, "<CANCELLED>\r\n")
				return ""
			}
		}
	}
}

// AutoChooseDefaultOption answers every request with its first option.
func AutoChooseDefaultOption(out io.Writer, quiet bool) heatwave.RequestChoice {
	return func(request string, options []string, cleanup bool) string {
		choice := options[0]
		if !cleanup && !quiet {
			fmt.Fprintf(out, "%s => [%s]\n", request, strings.ToUpper(choice))
		}
		return choice
	}
}
