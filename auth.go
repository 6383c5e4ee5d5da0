package orathin

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// password verifier generations
const (
	verifier10G = 0x939
	verifier11G = 0x1B25
	verifier12C = 0x4815
)

// AuthObject drives the two-round-trip challenge/response logon. Round
// one sends the username and receives the salted challenge; round two
// sends the AES-wrapped session key, password and, for 12c, the
// PBKDF2 speedy key proof.
type AuthObject struct {
	EServerSessKey  string
	EClientSessKey  string
	EPassword       string
	ESpeedyKey      string
	ServerSessKey   []byte
	ClientSessKey   []byte
	KeyHash         []byte
	Salt            string
	pbkdf2ChkSalt   string
	pbkdf2VgenCount int
	pbkdf2SderCount int
	VerifierType    int
	tcpNego         *TCPNego
	usePadding      bool
	resend          bool
}

// newAuthObject parses the round-one response (already requested by the
// caller) and prepares the round-two payload.
func newAuthObject(username, password string, tcpNego *TCPNego, conn *Connection) (*AuthObject, error) {
	ret := new(AuthObject)
	ret.tcpNego = tcpNego
	session := conn.session
	loop := true
	for loop {
		messageCode, err := session.GetByte()
		if err != nil {
			return nil, err
		}
		switch messageCode {
		case 4:
			if err = conn.readSummary(); err != nil {
				return nil, err
			}
			loop = false
		case 8:
			dictLen, err := session.GetInt(4, true, true)
			if err != nil {
				return nil, err
			}
			for x := 0; x < dictLen; x++ {
				key, val, num, err := session.GetKeyVal()
				if err != nil {
					return nil, err
				}
				switch string(key) {
				case "AUTH_SESSKEY":
					ret.EServerSessKey = string(val)
				case "AUTH_VFR_DATA":
					ret.Salt = string(val)
					ret.VerifierType = num
				case "AUTH_PBKDF2_CSK_SALT":
					ret.pbkdf2ChkSalt = string(val)
				case "AUTH_PBKDF2_VGEN_COUNT":
					ret.pbkdf2VgenCount, _ = strconv.Atoi(string(val))
				case "AUTH_PBKDF2_SDER_COUNT":
					ret.pbkdf2SderCount, _ = strconv.Atoi(string(val))
				}
			}
		default:
			return nil, fmt.Errorf("message code error: received code %d and expected code is 8", messageCode)
		}
	}
	err := ret.buildKeys(username, password)
	if err != nil {
		return nil, err
	}
	// the codec asks the engine to keep the same message in flight
	ret.resend = true
	return ret, nil
}

// buildKeys derives the password key for the negotiated verifier,
// unwraps the server session key and wraps ours plus the password.
func (obj *AuthObject) buildKeys(username, password string) error {
	var key []byte
	var err error
	padding := false
	switch obj.VerifierType {
	case verifier10G:
		key, err = getKeyFromUserNameAndPassword(username, password)
		if err != nil {
			return err
		}
	case verifier11G:
		if len(obj.tcpNego.ServerCompileTimeCaps) <= 4 ||
			obj.tcpNego.ServerCompileTimeCaps[4]&2 == 0 {
			padding = true
		}
		salt, err := hex.DecodeString(obj.Salt)
		if err != nil {
			return err
		}
		hash := sha1.New()
		hash.Write([]byte(password))
		hash.Write(salt)
		key = hash.Sum(nil)           // 20 byte key
		key = append(key, 0, 0, 0, 0) // 24 byte key
	case verifier12C:
		salt, err := hex.DecodeString(obj.Salt)
		if err != nil {
			return err
		}
		vgen := obj.pbkdf2VgenCount
		if vgen == 0 {
			vgen = 4096
		}
		speedySalt := append(salt, []byte("AUTH_PBKDF2_SPEEDY_KEY")...)
		passKey := pbkdf2.Key([]byte(password), speedySalt, vgen, 64, sha512.New)
		hash := sha512.New()
		hash.Write(passKey)
		hash.Write(salt)
		key = hash.Sum(nil)[:32]
	default:
		return errors.New("unsupported verifier type")
	}
	obj.usePadding = padding
	obj.ServerSessKey, err = decryptSessionKey(padding, key, obj.EServerSessKey)
	if err != nil {
		return err
	}
	obj.ClientSessKey = make([]byte, len(obj.ServerSessKey))
	for {
		if _, err = rand.Read(obj.ClientSessKey); err != nil {
			return err
		}
		if !bytes.Equal(obj.ClientSessKey, obj.ServerSessKey) {
			break
		}
	}
	obj.EClientSessKey, err = encryptSessionKey(padding, key, obj.ClientSessKey)
	if err != nil {
		return err
	}
	if obj.VerifierType == verifier12C {
		obj.KeyHash, err = deriveCombo12C(obj)
		if err != nil {
			return err
		}
		speedy := make([]byte, 80)
		if _, err = rand.Read(speedy[:16]); err != nil {
			return err
		}
		vgen := obj.pbkdf2VgenCount
		if vgen == 0 {
			vgen = 4096
		}
		// wrap the PBKDF2 verifier key so the server can skip the KDF
		salt, err := hex.DecodeString(obj.Salt)
		if err != nil {
			return err
		}
		speedySalt := append(salt, []byte("AUTH_PBKDF2_SPEEDY_KEY")...)
		passKey := pbkdf2.Key([]byte(password), speedySalt, vgen, 64, sha512.New)
		copy(speedy[16:], passKey)
		obj.ESpeedyKey, err = encryptSessionKey(true, obj.KeyHash, speedy)
		if err != nil {
			return err
		}
	} else {
		obj.KeyHash, err = calculateKeysHash(obj.VerifierType, obj.ServerSessKey[16:], obj.ClientSessKey[16:])
		if err != nil {
			return err
		}
	}
	obj.EPassword, err = encryptPassword(password, obj.KeyHash)
	return err
}

// deriveCombo12C mixes both session keys through another PBKDF2 round.
func deriveCombo12C(obj *AuthObject) ([]byte, error) {
	count := obj.pbkdf2SderCount
	if count == 0 {
		count = 3
	}
	salt, err := hex.DecodeString(obj.pbkdf2ChkSalt)
	if err != nil {
		return nil, err
	}
	w := make([]byte, 0, 96)
	w = append(w, obj.ServerSessKey[:32]...)
	w = append(w, obj.ClientSessKey[:32]...)
	mixed := hex.EncodeToString(w)
	return pbkdf2.Key([]byte(strings.ToUpper(mixed)), salt, count, 32, sha512.New), nil
}

// write sends round two: logon mode, username, and the AUTH key/value
// dictionary carrying the encrypted material plus client identity.
func (obj *AuthObject) write(conn *Connection, mode LogonMode) error {
	session := conn.session
	config := conn.config
	session.ResetBuffer()
	keyValSize := 22
	session.PutBytes(3, 0x73, 0)
	userID := config.UserID
	if len(userID) > 0 {
		session.PutInt(1, 1, false, false)
		session.PutInt(len(userID), 4, true, true)
	} else {
		session.PutBytes(0, 0)
	}
	if len(userID) > 0 && len(obj.EPassword) > 0 {
		mode |= UserAndPass
	}
	session.PutUint(int(mode), 4, true, true)
	session.PutUint(1, 1, false, false)
	session.PutUint(keyValSize, 4, true, true)
	session.PutBytes(1, 1)
	if len(userID) > 0 {
		session.PutBytes([]byte(userID)...)
	}
	index := 0
	if len(obj.EClientSessKey) > 0 {
		session.PutKeyValString("AUTH_SESSKEY", obj.EClientSessKey, 1)
		index++
	}
	if len(obj.EPassword) > 0 {
		session.PutKeyValString("AUTH_PASSWORD", obj.EPassword, 0)
		index++
	}
	if len(obj.ESpeedyKey) > 0 {
		session.PutKeyValString("AUTH_PBKDF2_SPEEDY_KEY", obj.ESpeedyKey, 0)
		index++
	}
	session.PutKeyValString("AUTH_TERMINAL", config.ClientInfo.HostName, 0)
	index++
	session.PutKeyValString("AUTH_PROGRAM_NM", config.ClientInfo.ProgramName, 0)
	index++
	session.PutKeyValString("AUTH_MACHINE", config.ClientInfo.HostName, 0)
	index++
	session.PutKeyValString("AUTH_PID", strconv.Itoa(config.ClientInfo.PID), 0)
	index++
	session.PutKeyValString("AUTH_SID", config.ClientInfo.UserName, 0)
	index++
	session.PutKeyValString("SESSION_CLIENT_CHARSET", strconv.Itoa(obj.tcpNego.ServerCharset), 0)
	index++
	session.PutKeyValString("SESSION_CLIENT_LIB_TYPE", "0", 0)
	index++
	session.PutKeyValString("SESSION_CLIENT_DRIVER_NAME", config.ClientInfo.DriverName, 0)
	index++
	session.PutKeyValString("SESSION_CLIENT_VERSION", driverVersion, 0)
	index++
	session.PutKeyValString("SESSION_CLIENT_LOBATTR", "1", 0)
	index++
	if len(config.Edition) > 0 {
		session.PutKeyValString("AUTH_ORA_EDITION", config.Edition, 0)
		index++
	}
	if config.Purity != 0 {
		session.PutKeyValString("AUTH_KPPL_PURITY", strconv.Itoa(int(config.Purity)), 1)
		index++
	}
	language := config.ClientInfo.Language
	if language == "" {
		language = "AMERICAN"
	}
	territory := config.ClientInfo.Territory
	if territory == "" {
		territory = "AMERICA"
	}
	session.PutKeyValString("AUTH_ALTER_SESSION",
		fmt.Sprintf("ALTER SESSION SET NLS_LANGUAGE='%s' NLS_TERRITORY='%s'  TIME_ZONE='%s'\x00",
			language, territory, sessionTimeZone()), 1)
	index++
	for index < keyValSize {
		session.PutKeyVal(nil, nil, 0)
		index++
	}
	return session.Write()
}

func sessionTimeZone() string {
	_, offset := time.Now().Zone()
	if offset == 0 {
		return "00:00"
	}
	hours := int8(offset / 3600)
	minutes := int8((offset / 60) % 60)
	if minutes < 0 {
		minutes = -minutes
	}
	return fmt.Sprintf("%+03d:%02d", hours, minutes)
}

// VerifyResponse checks the AUTH_SVR_RESPONSE proof so a spoofed
// server cannot complete the logon.
func (obj *AuthObject) VerifyResponse(response string) bool {
	key, err := decryptSessionKey(true, obj.KeyHash, response)
	if err != nil {
		return false
	}
	return len(key) >= 32 && bytes.Equal(key[16:32], []byte("SERVER_TO_CLIENT"))
}

// getKeyFromUserNameAndPassword is the pre-11g DES key schedule.
func getKeyFromUserNameAndPassword(username string, password string) ([]byte, error) {
	username = strings.ToUpper(username)
	password = strings.ToUpper(password)
	extendString := func(str string) []byte {
		ret := make([]byte, len(str)*2)
		for index, char := range []byte(str) {
			ret[index*2] = 0
			ret[index*2+1] = char
		}
		return ret
	}
	buffer := append(extendString(username), extendString(password)...)
	if len(buffer)%8 > 0 {
		buffer = append(buffer, make([]byte, 8-len(buffer)%8)...)
	}
	key := []byte{1, 35, 69, 103, 137, 171, 205, 239}
	desEnc := func(input []byte, key []byte) ([]byte, error) {
		ret := make([]byte, 8)
		enc, err := des.NewCipher(key)
		if err != nil {
			return nil, err
		}
		for x := 0; x < len(input)/8; x++ {
			for y := 0; y < 8; y++ {
				ret[y] = uint8(int(ret[y]) ^ int(input[x*8+y]))
			}
			output := make([]byte, 8)
			enc.Encrypt(output, ret)
			copy(ret, output)
		}
		return ret, nil
	}
	key1, err := desEnc(buffer, key)
	if err != nil {
		return nil, err
	}
	key2, err := desEnc(buffer, key1)
	if err != nil {
		return nil, err
	}
	return append(key2, make([]byte, 8)...), nil
}

func pkcs5Padding(cipherText []byte, blockSize int) []byte {
	padding := blockSize - len(cipherText)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(cipherText, padText...)
}

func decryptSessionKey(padding bool, encKey []byte, sessionKey string) ([]byte, error) {
	result, err := hex.DecodeString(sessionKey)
	if err != nil {
		return nil, err
	}
	blk, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	if len(result)%blk.BlockSize() != 0 {
		return nil, errors.New("session key is not block aligned")
	}
	enc := cipher.NewCBCDecrypter(blk, make([]byte, 16))
	output := make([]byte, len(result))
	enc.CryptBlocks(output, result)
	cutLen := 0
	if padding {
		num := int(output[len(output)-1])
		if num > 0 && num <= enc.BlockSize() {
			apply := true
			for x := len(output) - num; x < len(output); x++ {
				if output[x] != uint8(num) {
					apply = false
					break
				}
			}
			if apply {
				cutLen = num
			}
		}
	}
	return output[:len(output)-cutLen], nil
}

func encryptSessionKey(padding bool, encKey []byte, sessionKey []byte) (string, error) {
	blk, err := aes.NewCipher(encKey)
	if err != nil {
		return "", err
	}
	enc := cipher.NewCBCEncrypter(blk, make([]byte, 16))
	if padding {
		sessionKey = pkcs5Padding(sessionKey, blk.BlockSize())
	}
	output := make([]byte, len(sessionKey))
	enc.CryptBlocks(output, sessionKey)
	return fmt.Sprintf("%X", output), nil
}

func encryptPassword(password string, key []byte) (string, error) {
	buff1 := make([]byte, 0x10)
	if _, err := rand.Read(buff1); err != nil {
		return "", err
	}
	buffer := append(buff1, []byte(password)...)
	return encryptSessionKey(true, key, buffer)
}

func calculateKeysHash(verifierType int, key1 []byte, key2 []byte) ([]byte, error) {
	hash := md5.New()
	switch verifierType {
	case verifier10G:
		buffer := make([]byte, 16)
		for x := 0; x < 16; x++ {
			buffer[x] = key1[x] ^ key2[x]
		}
		if _, err := hash.Write(buffer); err != nil {
			return nil, err
		}
		return hash.Sum(nil), nil
	case verifier11G:
		buffer := make([]byte, 24)
		for x := 0; x < 24; x++ {
			buffer[x] = key1[x] ^ key2[x]
		}
		if _, err := hash.Write(buffer[:16]); err != nil {
			return nil, err
		}
		ret := hash.Sum(nil)
		hash.Reset()
		if _, err := hash.Write(buffer[16:]); err != nil {
			return nil, err
		}
		ret = append(ret, hash.Sum(nil)...)
		return ret[:24], nil
	}
	return nil, errors.New("unsupported verifier type for key hash")
}
