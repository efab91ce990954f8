package models

import (
	"fmt"
	"math/rand/v2"
)

var (
	usernameAdjectives = []string{"Hidden", "Silent", "Secret", "Shadow", "Mystery", "Unknown"}
	usernameNouns      = []string{"Whisper", "Echo", "Voice", "Spirit", "Ghost", "Phantom"}
)

// RandomUsername returns an anonymous handle such as "SilentEcho42"
func RandomUsername() string {
	adj := usernameAdjectives[rand.IntN(len(usernameAdjectives))]
	noun := usernameNouns[rand.IntN(len(usernameNouns))]
	return fmt.Sprintf("%s%s%d", adj, noun, rand.IntN(1000))
}
