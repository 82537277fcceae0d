package main

import (
	"strings"
)

// 50 from RFC
const maxChannelLength = 50

// Servers set their own limit. Anything longer than this is surely a mistake.
const maxNickLength = 32

// isValidNick checks if a nickname is one a server could accept.
//
// RFC 2812 section 2.3.1: a letter or special character first, then letters,
// digits, special characters, or '-'.
func isValidNick(n string) bool {
	if len(n) == 0 || len(n) > maxNickLength {
		return false
	}

	for i, char := range n {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			continue
		}

		if strings.ContainsRune("[]\\`_^{|}", char) {
			continue
		}

		// No digits or '-' in first position.
		if i > 0 && ((char >= '0' && char <= '9') || char == '-') {
			continue
		}

		return false
	}

	return true
}

// isValidChannel checks a channel name for validity.
//
// RFC 2812 section 1.3: a prefix of '&', '#', '+', or '!', and no spaces,
// commas, or control G.
func isValidChannel(c string) bool {
	if len(c) < 2 || len(c) > maxChannelLength {
		return false
	}

	if !strings.ContainsRune("&#+!", rune(c[0])) {
		return false
	}

	return !strings.ContainsAny(c, " ,\x07\r\n\x00")
}

// isValidTarget checks a PRIVMSG target: a channel or a nickname.
func isValidTarget(t string) bool {
	return isValidChannel(t) || isValidNick(t)
}
