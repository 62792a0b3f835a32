// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fixedpoint

import (
	"math/big"
)

// Bancor power-function constants, reproduced bit-exact from the reference
// BancorFormula contract. These operate on *big.Int rather than uint256.Int
// because several of the range-reduction constants exceed 256 bits of
// headroom once shifted (max_num is 2^129), and big.Int keeps the ported
// arithmetic a literal transliteration of the Solidity source.
var (
	bancorMaxNum      = mustHex("200000000000000000000000000000000")
	BancorFixed1      = mustHex("080000000000000000000000000000000")
	bancorFixed2      = mustHex("100000000000000000000000000000000")
	BancorOptLogMaxVal = mustHex("15bf0a8b1457695355fb8ac404e7a79e3")
	bancorMaxPrecision = 127

	ln2Numerator   = mustHex("3f80fe03f80fe03f80fe03f80fe03f8")
	ln2Denominator = mustHex("5b9de1d10bf4103d647b0955897ba80")
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("fixedpoint: bad bancor constant " + s)
	}
	return n
}

// maxExpArray holds max_exp_array[32..127]; indices below 32 are unused and
// left nil so the slice index matches the Python/Solidity precision index.
var maxExpArray = buildMaxExpArray()

func buildMaxExpArray() []*big.Int {
	hexVals := []string{
		"1c35fedd14ffffffffffffffffffffffff", "1b0ce43b323fffffffffffffffffffffff",
		"19f0028ec1ffffffffffffffffffffffff", "18ded91f0e7fffffffffffffffffffffff",
		"17d8ec7f0417ffffffffffffffffffffff", "16ddc6556cdbffffffffffffffffffffff",
		"15ecf52776a1ffffffffffffffffffffff", "15060c256cb2ffffffffffffffffffffff",
		"1428a2f98d72ffffffffffffffffffffff", "13545598e5c23fffffffffffffffffffff",
		"1288c4161ce1dfffffffffffffffffffff", "11c592761c666fffffffffffffffffffff",
		"110a688680a757ffffffffffffffffffff", "1056f1b5bedf77ffffffffffffffffffff",
		"0faadceceeff8bffffffffffffffffffff", "0f05dc6b27edadffffffffffffffffffff",
		"0e67a5a25da4107fffffffffffffffffff", "0dcff115b14eedffffffffffffffffffff",
		"0d3e7a392431239fffffffffffffffffff", "0cb2ff529eb71e4fffffffffffffffffff",
		"0c2d415c3db974afffffffffffffffffff", "0bad03e7d883f69bffffffffffffffffff",
		"0b320d03b2c343d5ffffffffffffffffff", "0abc25204e02828dffffffffffffffffff",
		"0a4b16f74ee4bb207fffffffffffffffff", "09deaf736ac1f569ffffffffffffffffff",
		"0976bd9952c7aa957fffffffffffffffff", "09131271922eaa606fffffffffffffffff",
		"08b380f3558668c46fffffffffffffffff", "0857ddf0117efa215bffffffffffffffff",
		"07ffffffffffffffffffffffffffffffff", "07abbf6f6abb9d087fffffffffffffffff",
		"075af62cbac95f7dfa7fffffffffffffff", "070d7fb7452e187ac13fffffffffffffff",
		"06c3390ecc8af379295fffffffffffffff", "067c00a3b07ffc01fd6fffffffffffffff",
		"0637b647c39cbb9d3d27ffffffffffffff", "05f63b1fc104dbd39587ffffffffffffff",
		"05b771955b36e12f7235ffffffffffffff", "057b3d49dda84556d6f6ffffffffffffff",
		"054183095b2c8ececf30ffffffffffffff", "050a28be635ca2b888f77fffffffffffff",
		"04d5156639708c9db33c3fffffffffffff", "04a23105873875bd52dfdfffffffffffff",
		"0471649d87199aa990756fffffffffffff", "04429a21a029d4c1457cfbffffffffffff",
		"0415bc6d6fb7dd71af2cb3ffffffffffff", "03eab73b3bbfe282243ce1ffffffffffff",
		"03c1771ac9fb6b4c18e229ffffffffffff", "0399e96897690418f785257fffffffffff",
		"0373fc456c53bb779bf0ea9fffffffffff", "034f9e8e490c48e67e6ab8bfffffffffff",
		"032cbfd4a7adc790560b3337ffffffffff", "030b50570f6e5d2acca94613ffffffffff",
		"02eb40f9f620fda6b56c2861ffffffffff", "02cc8340ecb0d0f520a6af58ffffffffff",
		"02af09481380a0a35cf1ba02ffffffffff", "0292c5bdd3b92ec810287b1b3fffffffff",
		"0277abdcdab07d5a77ac6d6b9fffffffff", "025daf6654b1eaa55fd64df5efffffffff",
		"0244c49c648baa98192dce88b7ffffffff", "022ce03cd5619a311b2471268bffffffff",
		"0215f77c045fbe885654a44a0fffffffff", "01ffffffffffffffffffffffffffffffff",
		"01eaefdbdaaee7421fc4d3ede5ffffffff", "01d6bd8b2eb257df7e8ca57b09bfffffff",
		"01c35fedd14b861eb0443f7f133fffffff", "01b0ce43b322bcde4a56e8ada5afffffff",
		"019f0028ec1fff007f5a195a39dfffffff", "018ded91f0e72ee74f49b15ba527ffffff",
		"017d8ec7f04136f4e5615fd41a63ffffff", "016ddc6556cdb84bdc8d12d22e6fffffff",
		"015ecf52776a1155b5bd8395814f7fffff", "015060c256cb23b3b3cc3754cf40ffffff",
		"01428a2f98d728ae223ddab715be3fffff", "013545598e5c23276ccf0ede68034fffff",
		"01288c4161ce1d6f54b7f61081194fffff", "011c592761c666aa641d5a01a40f17ffff",
		"0110a688680a7530515f3e6e6cfdcdffff", "01056f1b5bedf75c6bcb2ce8aed428ffff",
		"00faadceceeff8a0890f3875f008277fff", "00f05dc6b27edad306388a600f6ba0bfff",
		"00e67a5a25da41063de1495d5b18cdbfff", "00dcff115b14eedde6fc3aa5353f2e4fff",
		"00d3e7a3924312399f9aae2e0f868f8fff", "00cb2ff529eb71e41582cccd5a1ee26fff",
		"00c2d415c3db974ab32a51840c0b67edff", "00bad03e7d883f69ad5b0a186184e06bff",
		"00b320d03b2c343d4829abd6075f0cc5ff", "00abc25204e02828d73c6e80bcdb1a95bf",
		"00a4b16f74ee4bb2040a1ec6c15fbbf2df", "009deaf736ac1f569deb1b5ae3f36c130f",
		"00976bd9952c7aa957f5937d790ef65037", "009131271922eaa6064b73a22d0bd4f2bf",
		"008b380f3558668c46c91c49a2f8e967b9", "00857ddf0117efa215952912839f6473e6",
	}
	arr := make([]*big.Int, 32, 32+len(hexVals))
	for _, h := range hexVals {
		arr = append(arr, mustHex(h))
	}
	return arr
}

var optimalLogThresholds = []struct{ threshold, add string }{
	{"d3094c70f034de4b96ff7d5b6f99fcd8", "40000000000000000000000000000000"},
	{"a45af1e1f40c333b3de1db4dd55f29a7", "20000000000000000000000000000000"},
	{"910b022db7ae67ce76b441c27035c6a1", "10000000000000000000000000000000"},
	{"88415abbe9a76bead8d00cf112e4d4a8", "08000000000000000000000000000000"},
	{"84102b00893f64c705e841d5d4064bd3", "04000000000000000000000000000000"},
	{"8204055aaef1c8bd5c3259f4822735a2", "02000000000000000000000000000000"},
	{"810100ab00222d861931c15e39b44e99", "01000000000000000000000000000000"},
	{"808040155aabbbe9451521693554f733", "00800000000000000000000000000000"},
}

// OptimalLog computes ln(x) in FIXED_1 (2^127) precision for x close to fixed_1 via
// 8-level range reduction followed by a degree-8 polynomial correction.
func OptimalLog(x *big.Int) *big.Int {
	res := new(big.Int)
	fixed1 := BancorFixed1
	x = new(big.Int).Set(x)
	for _, t := range optimalLogThresholds {
		threshold := mustHex(t.threshold)
		if x.Cmp(threshold) >= 0 {
			res.Add(res, mustHex(t.add))
			x.Div(new(big.Int).Mul(x, fixed1), threshold)
		}
	}

	y := new(big.Int).Sub(x, fixed1)
	z := new(big.Int).Set(y)
	w := new(big.Int).Div(new(big.Int).Mul(y, y), fixed1)

	coeffs := []struct{ num, den string }{
		{"100000000000000000000000000000000", "100000000000000000000000000000000"},
		{"0aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "200000000000000000000000000000000"},
		{"099999999999999999999999999999999", "300000000000000000000000000000000"},
		{"092492492492492492492492492492492", "400000000000000000000000000000000"},
		{"08e38e38e38e38e38e38e38e38e38e38e", "500000000000000000000000000000000"},
		{"08ba2e8ba2e8ba2e8ba2e8ba2e8ba2e8b", "600000000000000000000000000000000"},
		{"089d89d89d89d89d89d89d89d89d89d89", "700000000000000000000000000000000"},
		{"088888888888888888888888888888888", "800000000000000000000000000000000"},
	}
	for i, c := range coeffs {
		num := mustHex(c.num)
		den := mustHex(c.den)
		term := new(big.Int).Sub(num, y)
		term.Mul(z, term)
		term.Div(term, den)
		res.Add(res, term)
		if i < len(coeffs)-1 {
			z.Mul(z, w)
			z.Div(z, fixed1)
		}
	}
	return res
}

func floorLog2(n *big.Int) uint {
	var res uint
	n = new(big.Int).Set(n)
	two56 := big.NewInt(256)
	if n.Cmp(two56) < 0 {
		one := big.NewInt(1)
		for n.Cmp(one) > 0 {
			n.Rsh(n, 1)
			res++
		}
		return res
	}
	for s := uint(128); s > 0; s >>= 1 {
		bound := new(big.Int).Lsh(big.NewInt(1), s)
		if n.Cmp(bound) >= 0 {
			n.Rsh(n, s)
			res |= s
		}
	}
	return res
}

// GeneralLog computes ln(x) in FIXED_1 (2^127) precision for arguments above the
// optimal-path threshold, via repeated squaring.
func GeneralLog(x *big.Int) *big.Int {
	res := new(big.Int)
	fixed1 := BancorFixed1
	x = new(big.Int).Set(x)
	if x.Cmp(bancorFixed2) >= 0 {
		count := floorLog2(new(big.Int).Div(x, fixed1))
		x.Rsh(x, count)
		res.Mul(big.NewInt(int64(count)), fixed1)
	}
	if x.Cmp(fixed1) > 0 {
		for i := bancorMaxPrecision; i > 0; i-- {
			x.Mul(x, x)
			x.Div(x, fixed1)
			if x.Cmp(bancorFixed2) >= 0 {
				x.Rsh(x, 1)
				res.Add(res, new(big.Int).Lsh(big.NewInt(1), uint(i-1)))
			}
		}
	}
	res.Mul(res, ln2Numerator)
	res.Div(res, ln2Denominator)
	return res
}

var optimalExpCoeffs = []string{
	"10e1b3be415a0000", "05a0913f6b1e0000", "0168244fdac78000", "004807432bc18000",
	"000c0135dca04000", "0001b707b1cdc000", "000036e0f639b800", "00000618fee9f800",
	"0000009c197dcc00", "0000000e30dce400", "000000012ebd1300", "0000000017499f00",
	"0000000001a9d480", "00000000001c6380", "000000000001c638", "0000000000001ab8",
	"000000000000017c", "0000000000000014", "0000000000000001",
}

var optimalExpDoublings = []struct{ mask, num, den string }{
	{"010000000000000000000000000000000", "1c3d6a24ed82218787d624d3e5eba95f9", "18ebef9eac820ae8682b9793ac6d1e776"},
	{"020000000000000000000000000000000", "18ebef9eac820ae8682b9793ac6d1e778", "1368b2fc6f9609fe7aceb46aa619baed4"},
	{"040000000000000000000000000000000", "1368b2fc6f9609fe7aceb46aa619baed5", "0bc5ab1b16779be3575bd8f0520a9f21f"},
	{"080000000000000000000000000000000", "0bc5ab1b16779be3575bd8f0520a9f21e", "0454aaa8efe072e7f6ddbab84b40a55c9"},
	{"100000000000000000000000000000000", "0454aaa8efe072e7f6ddbab84b40a55c5", "00960aadc109e7a3bf4578099615711ea"},
	{"200000000000000000000000000000000", "00960aadc109e7a3bf4578099615711d7", "0002bf84208204f5977f9a8cf01fdce3d"},
	{"400000000000000000000000000000000", "0002bf84208204f5977f9a8cf01fdc307", "0000003c6ab775dd0b95b4cbee7e65d11"},
}

// OptimalExp computes e^x in FIXED_1 (2^127) precision via a 19-term Taylor expansion
// followed by 7 range-doubling multiplications keyed on the top 7 bits of x.
func OptimalExp(x *big.Int) *big.Int {
	fixed1 := BancorFixed1
	mod := mustHex("10000000000000000000000000000000")
	y := new(big.Int).Mod(x, mod)
	z := new(big.Int).Set(y)
	res := new(big.Int)

	for _, cHex := range optimalExpCoeffs {
		z.Mul(z, y)
		z.Div(z, fixed1)
		res.Add(res, new(big.Int).Mul(z, mustHex(cHex)))
	}
	res.Div(res, mustHex("21c3677c82b40000"))
	res.Add(res, y)
	res.Add(res, fixed1)

	for _, d := range optimalExpDoublings {
		mask := mustHex(d.mask)
		tmp := new(big.Int).And(x, mask)
		if tmp.Sign() != 0 {
			res.Mul(res, mustHex(d.num))
			res.Div(res, mustHex(d.den))
		}
	}
	return res
}

// GeneralExp computes e^(x/2^precision) * 2^precision via a 33-term Taylor
// expansion, used above the optimal-exp domain.
func GeneralExp(x *big.Int, precision uint) *big.Int {
	coeffs := []string{
		"3442c4e6074a82f1797f72ac0000000", "116b96f757c380fb287fd0e40000000",
		"045ae5bdd5f0e03eca1ff4390000000", "00defabf91302cd95b9ffda50000000",
		"002529ca9832b22439efff9b8000000", "00054f1cf12bd04e516b6da88000000",
		"0000a9e39e257a09ca2d6db51000000", "000012e066e7b839fa050c309000000",
		"000001e33d7d926c329a1ad1a800000", "0000002bee513bdb4a6b19b5f800000",
		"00000003a9316fa79b88eccf2a00000", "0000000048177ebe1fa812375200000",
		"0000000005263fe90242dcbacf00000", "000000000057e22099c030d94100000",
		"0000000000057e22099c030d9410000", "00000000000052b6b54569976310000",
		"00000000000004985f67696bf748000", "000000000000003dea12ea99e498000",
		"00000000000000031880f2214b6e000", "000000000000000025bcff56eb36000",
		"000000000000000001b722e10ab1000", "0000000000000000001317c70077000",
		"00000000000000000000cba84aafa00", "00000000000000000000082573a0a00",
		"00000000000000000000005035ad900", "000000000000000000000002f881b00",
		"0000000000000000000000001b29340", "00000000000000000000000000efc40",
		"0000000000000000000000000007fe0", "0000000000000000000000000000420",
		"0000000000000000000000000000021", "0000000000000000000000000000001",
	}
	xi := new(big.Int).Set(x)
	res := new(big.Int)
	p := new(big.Int).Lsh(big.NewInt(1), precision)
	for _, cHex := range coeffs {
		xi.Mul(xi, x)
		xi.Rsh(xi, precision)
		res.Add(res, new(big.Int).Mul(xi, mustHex(cHex)))
	}
	res.Div(res, mustHex("688589cc0e9505e2f2fee5580000000"))
	res.Add(res, x)
	res.Add(res, p)
	return res
}

// findPosInMaxExpArray returns the largest precision index i in [32,127]
// such that x <= max_exp_array[i], matching the reference contract's linear
// scan (the domain is small enough that a binary search buys nothing here).
func findPosInMaxExpArray(x *big.Int) int {
	for i := len(maxExpArray) - 1; i >= 32; i-- {
		if x.Cmp(maxExpArray[i]) <= 0 {
			return i
		}
	}
	return 32
}

// Power computes (base_n/base_d)^(exp_n/exp_d) and returns the result scaled
// by 2^precision along with that precision (bit shift), selecting the optimal
// or general log/exp path by comparing against opt_log_max_val. Returns
// (nil, 0, false) if base_n is not below max_num (the conversion is then
// treated as non-exchangeable).
func Power(baseN, baseD, expN, expD *big.Int) (result *big.Int, precision uint, ok bool) {
	if baseN.Cmp(bancorMaxNum) >= 0 {
		return nil, 0, false
	}
	base := new(big.Int).Div(new(big.Int).Mul(baseN, BancorFixed1), baseD)

	var baseLog *big.Int
	if base.Cmp(BancorOptLogMaxVal) < 0 {
		baseLog = OptimalLog(base)
	} else {
		baseLog = GeneralLog(base)
	}

	baseLogTimesExp := new(big.Int).Div(new(big.Int).Mul(baseLog, expN), expD)
	if baseLogTimesExp.Cmp(BancorOptLogMaxVal) < 0 {
		return OptimalExp(baseLogTimesExp), uint(bancorMaxPrecision), true
	}
	pos := findPosInMaxExpArray(baseLogTimesExp)
	shifted := new(big.Int).Rsh(baseLogTimesExp, uint(bancorMaxPrecision-pos))
	return GeneralExp(shifted, uint(pos)), uint(pos), true
}
