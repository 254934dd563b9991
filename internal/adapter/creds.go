package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// tokenFile is the on-disk credential shape shared by adapters.
type tokenFile struct {
	Token string `json:"token"`
}

// LoadToken reads a bot token from a JSON credential file. Adapters call it
// per request rather than at startup so a server can come up before its
// credentials exist; the error text tells the operator what to create.
func LoadToken(path, platform string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s token file not found. Please create a %s file with your bot token.",
				platform, filepath.Base(path))
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	if tf.Token == "" {
		return "", fmt.Errorf("No token found in %s. Please add your bot token.", filepath.Base(path))
	}
	return tf.Token, nil
}
