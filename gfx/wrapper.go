package gfx

import (
	"regexp"
	"strings"

	"github.com/fraendk-lang/elastic-pulse-studio/render"
)

const quadVertexShader = `
#version 410
layout(location = 0) in vec2 vertPos;
out vec2 fragTexPos;
void main() {
	fragTexPos = vertPos * 0.5 + 0.5;
	gl_Position = vec4(vertPos, 0.0, 1.0);
}`

// layerHeader declares everything a user shader may reference. User code is
// written against GLSL ES 1.0 names, mapped onto the 4.1 core profile.
const layerHeader = `
#version 410
precision highp float;
out vec4 fragColor;
#define gl_FragColor fragColor
#define texture2D texture

uniform float u_time, u_speed, u_intensity, u_opacity, u_audio_val, u_zoom, u_kaleidoscope;
uniform float u_invert, u_chroma_burst, u_glitch_hit, u_mirror_flip, u_distort, u_hue_rotate;
uniform float u_contrast, u_saturation, u_brightness, u_particles;
uniform float u_tie_effect, u_feedback_delay;
uniform float u_freeze, u_frozen_time, u_pixelate, u_noise, u_rgb_shift, u_posterize;
uniform float u_scanlines, u_edge_detection, u_fisheye, u_twirl, u_master_kaleidoscope;
uniform vec2 u_resolution;
uniform vec3 u_color;
uniform vec3 u_echo_weights, u_echo_offsets;
uniform float u_echo_norm;
%VIDEO%
float dynamic_time;

vec3 hsv2rgb(vec3 c) { vec4 K = vec4(1.0, 2.0 / 3.0, 1.0 / 3.0, 3.0); vec3 p = abs(fract(c.xxx + K.xyz) * 6.0 - K.www); return c.z * mix(K.xxx, clamp(p - K.xxx, 0.0, 1.0), c.y); }
vec3 rgb2hsv(vec3 c) { vec4 K = vec4(0.0, -1.0 / 3.0, 2.0 / 3.0, -1.0); vec4 p = mix(vec4(c.bg, K.wz), vec4(c.gb, K.xy), step(c.b, c.g)); vec4 q = mix(vec4(p.xyw, c.r), vec4(c.r, p.yzx), step(p.x, c.r)); float d = q.x - min(q.w, q.y); return vec3(abs(q.z + (q.w - q.y) / (6.0 * d + 1e-10)), d / (q.x + 1e-10), q.x); }
float hash(vec2 p) { return fract(sin(dot(p, vec2(12.9898, 78.233))) * 43758.5453); }
`

const layerMain = `
void main() {
	dynamic_time = u_freeze > 0.5 ? u_frozen_time : u_time;
	vec2 p = (gl_FragCoord.xy - 0.5 * u_resolution.xy) / u_resolution.y;
	gl_FragColor = vec4(0.0);

	if (u_master_kaleidoscope > 0.0) {
		float a = atan(p.y, p.x); float r = length(p);
		float segments = floor(u_master_kaleidoscope) + 2.0;
		a = mod(a, 3.14159 * 2.0 / segments);
		a = abs(a - 3.14159 / segments);
		p = vec2(cos(a), sin(a)) * r;
	}
	if (u_fisheye > 0.0) {
		float r = length(p);
		p *= 1.0 + u_fisheye * r * r;
	}
	if (u_twirl > 0.0) {
		float a = atan(p.y, p.x) + u_twirl * (1.0 - length(p));
		float r = length(p);
		p = vec2(cos(a), sin(a)) * r;
	}
	if (u_pixelate > 0.0) {
		float s = 1.0 + u_pixelate * 0.01;
		p = floor(p * s * 10.0) / (s * 10.0);
	}
	if (u_tie_effect > 0.0) {
		float r = length(p); float a = atan(p.y, p.x);
		a += sin(r * 10.0 - dynamic_time) * u_tie_effect;
		p = vec2(cos(a), sin(a)) * r;
	}
	if (u_distort > 0.0) { p += sin(p.yx * 8.0 + dynamic_time * 2.0) * u_distort * 0.05; }
	if (u_zoom > 0.0) p /= (1.0 + u_zoom);
	if (u_mirror_flip > 0.5) p = abs(p);
	if (u_kaleidoscope > 0.0) {
		float a = atan(p.y, p.x); float r = length(p);
		a = mod(a, 3.14159 * 2.0 / u_kaleidoscope);
		a = abs(a - 3.14159 / u_kaleidoscope);
		p = vec2(cos(a), sin(a)) * r;
	}
	if (u_glitch_hit > 0.5) p.x += sin(p.y * 30.0 + dynamic_time * 10.0) * 0.05;

	if (u_echo_norm > 0.0) {
		vec4 sum = vec4(0.0);
		float t0 = dynamic_time;
		for (int i = 0; i < 3; i++) {
			dynamic_time = t0 + u_echo_offsets[i];
			user_main();
			sum += gl_FragColor * u_echo_weights[i];
		}
		gl_FragColor = sum / u_echo_norm;
		dynamic_time = t0;
	} else {
		user_main();
	}

	if (u_particles > 0.0) {
		float part = 0.0;
		vec2 gridUV = p * 15.0;
		vec2 id = floor(gridUV);
		for (float x = -1.0; x <= 1.0; x++) {
			for (float y = -1.0; y <= 1.0; y++) {
				vec2 nid = id + vec2(x, y);
				vec2 offset = vec2(hash(nid), hash(nid + 123.45)) - 0.5;
				vec2 pPos = nid + 0.5 + offset * sin(dynamic_time + hash(nid) * 10.0);
				float d = length(gridUV - pPos);
				part += smoothstep(0.1 + u_audio_val * 0.2, 0.0, d) * (0.5 + 0.5 * sin(dynamic_time * hash(nid)));
			}
		}
		gl_FragColor.rgb += u_color * part * u_particles * 2.5;
	}

	vec3 col = gl_FragColor.rgb;
	col = (col - 0.5) * u_contrast + 0.5 + u_brightness;
	float gray = dot(col, vec3(0.299, 0.587, 0.114));
	col = mix(vec3(gray), col, u_saturation);
	if (u_hue_rotate > 0.0) { vec3 hsv = rgb2hsv(col); hsv.x = fract(hsv.x + u_hue_rotate); col = hsv2rgb(hsv); }
	if (u_invert > 0.5) col = 1.0 - col;
	if (u_chroma_burst > 0.5) col.rb += vec2(0.2);
	if (u_noise > 0.0) col += (hash(gl_FragCoord.xy + dynamic_time) - 0.5) * u_noise;
	if (u_posterize > 0.0) {
		float levels = floor(u_posterize) + 1.0;
		col = floor(col * levels) / levels;
	}
	if (u_scanlines > 0.5) col *= 0.7 + step(0.5, mod(gl_FragCoord.y, 2.0)) * 0.3;
	if (u_edge_detection > 0.5) {
		float edge = abs(col.r - col.g) + abs(col.g - col.b) + abs(col.b - col.r);
		col = vec3(edge * 3.0);
	}
	gl_FragColor = vec4(col, gl_FragColor.a * u_opacity);
}
`

const imageFragmentShader = `
#version 410
uniform sampler2D tex;
uniform float u_opacity;
in vec2 fragTexPos;
out vec4 fragColor;
void main() {
	vec4 c = texture(tex, vec2(fragTexPos.x, 1.0 - fragTexPos.y));
	fragColor = vec4(c.rgb, c.a * u_opacity);
}`

const fillFragmentShader = `
#version 410
uniform vec4 u_fill;
out vec4 fragColor;
void main() {
	fragColor = u_fill;
}`

// postFragmentShader is one pass of the final filter. The blur is separable:
// it runs twice, first along x then along y, with brightness, hue and
// contrast applied on the second pass only.
const postFragmentShader = `
#version 410
uniform sampler2D tex;
uniform vec2 u_resolution;
uniform vec2 u_direction;
uniform float u_sigma;
uniform float u_brightness;
uniform float u_contrast;
uniform mat3 u_hue;
uniform float u_grade;
in vec2 fragTexPos;
out vec4 fragColor;

void main() {
	vec4 c = texture(tex, fragTexPos);
	if (u_sigma > 0.0) {
		float total = 1.0;
		int radius = int(ceil(u_sigma * 3.0));
		for (int i = 1; i <= radius; i++) {
			float w = exp(-float(i * i) / (2.0 * u_sigma * u_sigma));
			vec2 off = u_direction * float(i) / u_resolution;
			c += (texture(tex, fragTexPos + off) + texture(tex, fragTexPos - off)) * w;
			total += 2.0 * w;
		}
		c /= total;
	}
	if (u_grade > 0.5) {
		vec3 rgb = c.rgb * u_brightness;
		rgb = u_hue * rgb;
		rgb = (rgb - 0.5) * u_contrast + 0.5;
		c.rgb = clamp(rgb, 0.0, 1.0);
	}
	fragColor = c;
}`

var (
	timeRef     = regexp.MustCompile(`\bu_time\b`)
	mainDecl    = regexp.MustCompile(`void\s+main\s*\([^)]*\)`)
	precision   = regexp.MustCompile(`precision\s+\w+\s+float\s*;`)
	versionLine = regexp.MustCompile(`(?m)^\s*#version.*$`)
	uniformDecl = regexp.MustCompile(`uniform\s+(float|vec2|vec3|sampler2D)\s+u_[\w, ]+;`)
)

// WrapLayer builds the fragment shader for a user shader: the user's main
// becomes user_main, reads of u_time go through the feedback-controlled
// dynamic_time, and the effect chain runs around it.
func WrapLayer(src string, v render.Variant) string {
	// The header already sets precision and declares every uniform.
	user := versionLine.ReplaceAllString(src, "")
	user = precision.ReplaceAllString(user, "")
	user = uniformDecl.ReplaceAllString(user, "")
	user = timeRef.ReplaceAllString(user, "dynamic_time")
	user = mainDecl.ReplaceAllString(user, "void user_main()")

	video := ""
	if v == render.WithVideo {
		video = "uniform sampler2D u_video;"
	}
	header := strings.Replace(layerHeader, "%VIDEO%", video, 1)
	return header + user + "\n" + layerMain
}
