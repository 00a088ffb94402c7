package main

const CLIVersion = "v0.3.0"
