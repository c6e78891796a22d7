package main

import _ "embed"

// configTemplate is the document written by "shelteragent init".
//
//go:embed config.template.yml
var configTemplate []byte
