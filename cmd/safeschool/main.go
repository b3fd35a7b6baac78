// Command safeschool watches a school entrance camera, recognizes enrolled
// students and notifies their guardians over Telegram.
package main

func main() {
	Execute()
}
