package main

// Version of the dashboard sync tool.
const Version = "0.3.0"
